package middleware

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

// Input validation and sanitization utilities

var allowedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// ValidateImageName checks the uploaded file has an image extension
func ValidateImageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedImageExt[ext] {
		return fmt.Errorf("unsupported image type %q (allowed: png, jpg, jpeg, gif, webp, bmp)", ext)
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("invalid characters in file name")
	}
	return nil
}

// ValidateAnalysisID validates analysis ID format (ULID)
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if !analysis.ValidID(id) {
		return fmt.Errorf("invalid analysis ID format")
	}
	return nil
}

// ValidateTemplateLink validates a template link before the server fetches it.
// Hosts in trusted (our own object store) skip the internal-address checks.
func ValidateTemplateLink(rawURL string, trusted ...string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	for _, t := range trusted {
		if t != "" && strings.EqualFold(u.Host, t) {
			return nil
		}
	}

	// Check for localhost/internal IPs (SSRF protection)
	host := strings.ToLower(u.Hostname())
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1", "169.254."}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
	}

	// Block private IP ranges (basic check)
	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "172.16.") ||
		strings.HasPrefix(host, "172.31.") {
		return fmt.Errorf("private IP ranges are not allowed")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateFeedbackType validates the feedback category
func ValidateFeedbackType(kind string) error {
	switch strings.ToLower(kind) {
	case "", "general", "suggestion", "issue", "praise":
		return nil
	}
	return fmt.Errorf("invalid feedback type: %s (allowed: general, suggestion, issue, praise)", kind)
}

// TruncateString caps free text at max runes
func TruncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
