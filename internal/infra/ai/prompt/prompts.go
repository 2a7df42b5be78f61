package prompt

// DescribeImageSystem asks the model for a comma separated list of resources in a sketch.
func DescribeImageSystem() string {
	return "You are an AI assistant that helps an Azure DevOps engineer understand an image that likely shows Azure resources like VMs, SQL, storage, and web apps. " +
		"Please identify a list of Azure resources from the image and any connections. " +
		"In the response only pass resources that you think are in the image, for example if you see a VM say VM, if you see sql say sql, if you see storage say storage and so on. " +
		"Do not list anything that is not an Azure resource. Use commas to separate each entity."
}

func DescribeImageUser() string { return "What's in the image?" }

// ArchitectureSystem asks for a markdown write-up of architectures built from the resources.
func ArchitectureSystem() string {
	return "You are an IT Architect who helps students and IT professionals with different architectures and deployments using Azure resources like VMs, SQL, storage, and web apps. " +
		"Provide a brief understanding of each resource, followed by a write-up on different architectures referring to 'Microsoft Learn' and 'Microsoft Architecture Center'. " +
		"Include citations and links. Use concise formatting with bullet points where needed. Do not output any message beside the content."
}

func ArchitectureUser(components string) string {
	return "Please give a good understanding on architecture with " + components
}

// TemplateSystem demands the JSON array shape parsed by ParseTemplateBundle.
func TemplateSystem() string {
	return `You are an Azure deployment expert. I need a complete deployment template for the Azure resources I'll specify. IMPORTANT: Your response must be a JSON array and nothing else, no markdown and no code fences.

The array holds one object with:
1. A Bicep template with only the Bicep code, without any explanations, introductions, or conclusions.
2. The equivalent ARM (JSON) template for the same resources.

Requirements for both templates:
- Production-ready and directly deployable
- Include appropriate parameters, variables, and outputs
- Follow Azure best practices
- Ignore any non-Azure resources mentioned
- Ensure all necessary dependencies between resources are properly configured

Provide the templates in this JSON array format:
[
  {
    "name": "A short suitable custom ArchitectureName",
    "description": "A suitable custom Architecture description",
    "bicepTemplate": "BicepTemplateContent",
    "armTemplate": "ArmTemplateContent"
  }
]`
}

func TemplateUser(components string) string {
	return "Please provide a template for: " + components
}
