package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/ai/prompt"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/archive"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/metrics"
)

// DescriptionNotFound is the notice shown when the image yields no resources.
const DescriptionNotFound = "Description not found."

// Generator is the prompt-level AI capability the workflow needs.
type Generator interface {
	DescribeImage(ctx context.Context, imageURL string) (string, error)
	ExplainArchitecture(ctx context.Context, components string) (string, error)
	GenerateTemplates(ctx context.Context, components string) (string, error)
}

// DemoDefaults are the fixed links and placeholders written into demo metadata.
type DemoDefaults struct {
	Author     string
	Source     string
	Website    string
	DemoGuide  string
	Prereqs    string
	Cost       string
	DeployTime string
}

type Config struct {
	ImageContainer    string
	TemplateContainer string
	PackageContainer  string

	CallTimeout       time.Duration
	ImageURLExpiry    time.Duration
	TemplateURLExpiry time.Duration
	PackageURLExpiry  time.Duration

	Branch        string
	PathPrefix    string
	FileName      string
	CommitMessage string
	RegistryURL   string

	Demo DemoDefaults
}

// Service implements the analysis workflow use-cases.
// Service is designed to be used concurrently and is thread-safe
type Service struct {
	Repo     domain.Repository
	Blobs    domain.BlobStore
	AI       Generator
	Registry domain.Registry
	Clock    application.Clock
	Log      *zap.Logger
	Config   Config

	flight singleflight.Group
}

//
// ==== USE CASES ====
//

type StartResult struct {
	ID         string   `json:"id"`
	Components []string `json:"componentList"`
	ImageURL   string   `json:"imageUrl"`
	Notice     string   `json:"notice,omitempty"`
}

type PublishResult struct {
	Folder      string `json:"folder"`
	DisplayName string `json:"displayName"`
	Path        string `json:"path"`
	RegistryURL string `json:"registryUrl"`
}

type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMultiple Mode = "multiple"
)

// ParseMode defaults to multiple when s is blank.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMultiple:
		return ModeMultiple, nil
	case ModeSingle:
		return ModeSingle, nil
	}
	return "", domain.Invalid("mode", "unknown mode %q (allowed: single, multiple)", s)
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// bounded applies the per-call timeout to one adapter call.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Config.CallTimeout)
}

func (s *Service) load(ctx context.Context, id string) (*domain.Record, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	rec, err := s.Repo.Get(cctx, id)
	if err != nil {
		return nil, domain.Upstream("load analysis", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return rec, nil
}

func (s *Service) save(ctx context.Context, id string, cs domain.ChangeSet) error {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.Repo.Upsert(cctx, id, cs); err != nil {
		return domain.Upstream("save analysis", err)
	}
	return nil
}

func (s *Service) upload(ctx context.Context, container, name string, data []byte, contentType string, expiry time.Duration) (string, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.Blobs.Save(cctx, container, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", domain.Upstream("store "+name, err)
	}
	link, err := s.Blobs.SignedURL(cctx, container, name, expiry)
	if err != nil {
		return "", domain.Upstream("sign "+name, err)
	}
	return link, nil
}

// StartAnalysis stores the sketch, asks the model which resources it shows and
// creates the record holding the component list and image URL.
func (s *Service) StartAnalysis(ctx context.Context, image io.Reader, fileName string) (StartResult, error) {
	if image == nil {
		return StartResult{}, domain.Invalid("uploadFile", "image is required")
	}
	data, err := io.ReadAll(image)
	if err != nil {
		return StartResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return StartResult{}, domain.Invalid("uploadFile", "image is empty")
	}

	id := domain.NewID()
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".png"
	}
	blob := fmt.Sprintf("%s-%s%s", s.now().UTC().Format("20060102150405"), id, ext)
	contentType := mime.TypeByExtension(ext)

	imageURL, err := s.upload(ctx, s.Config.ImageContainer, blob, data, contentType, s.Config.ImageURLExpiry)
	if err != nil {
		return StartResult{}, err
	}

	text, err := s.AI.DescribeImage(ctx, imageURL)
	if err != nil {
		return StartResult{}, domain.Upstream("describe image", err)
	}

	res := StartResult{ID: id, ImageURL: imageURL, Components: prompt.ParseComponents(text)}
	if len(res.Components) == 0 {
		res.Notice = DescriptionNotFound
	}

	if err := s.save(ctx, id, domain.ChangeSet{
		domain.FieldComponentList: res.Components,
		domain.FieldImageURL:      imageURL,
	}); err != nil {
		return StartResult{}, err
	}

	s.logger().Info("analysis started",
		zap.String("id", id),
		zap.String("blob", blob),
		zap.Strings("components", res.Components))
	return res, nil
}

// GetAnalysis returns the stored record.
func (s *Service) GetAnalysis(ctx context.Context, id string) (*domain.Record, error) {
	return s.load(ctx, id)
}

// DeleteAnalysis is administrative; deleting a missing id is not an error.
func (s *Service) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	ok, err := s.Repo.Delete(cctx, id)
	if err != nil {
		return false, domain.Upstream("delete analysis", err)
	}
	s.logger().Info("analysis deleted", zap.String("id", id), zap.Bool("existed", ok))
	return ok, nil
}

// GetArchitectureDetail serves the cached narrative or generates it once.
func (s *Service) GetArchitectureDetail(ctx context.Context, id string) (string, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.HasArchitectureDetail() {
		metrics.CacheHit("architecture")
		return rec.ArchitectureDetail, nil
	}
	if len(rec.Components) == 0 {
		return "", nil
	}

	v, err, shared := s.flight.Do("architecture:"+id, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		// cek lagi, mungkin request lain sudah selesai duluan
		rec, err := s.load(ctx, id)
		if err != nil {
			return "", err
		}
		if rec.HasArchitectureDetail() {
			metrics.CacheHit("architecture")
			return rec.ArchitectureDetail, nil
		}
		metrics.CacheMiss("architecture")

		text, err := s.AI.ExplainArchitecture(ctx, rec.JoinedComponents())
		if err != nil {
			return "", domain.Upstream("explain architecture", err)
		}
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		if err := s.save(ctx, id, domain.ChangeSet{domain.FieldArchitectureDetail: text}); err != nil {
			return "", err
		}
		s.logger().Info("architecture detail generated", zap.String("id", id), zap.Int("length", len(text)))
		return text, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger().Debug("architecture detail shared with concurrent request", zap.String("id", id))
	}
	return v.(string), nil
}

// GetTemplates returns the Bicep/ARM pair for the record's components.
// Only multiple mode is cached; single mode always regenerates.
func (s *Service) GetTemplates(ctx context.Context, id string, mode Mode) (domain.TemplateBundle, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return domain.TemplateBundle{}, err
	}
	n := len(rec.Components)
	if n == 0 {
		return domain.TemplateBundle{}, domain.Invalid("componentList", "no components to build a template for")
	}
	switch mode {
	case ModeSingle:
		if n != 1 {
			return domain.TemplateBundle{}, domain.Invalid("mode",
				"mode %q requires exactly one component, got %d", ModeSingle, n)
		}
		return s.generateTemplates(ctx, rec, mode)
	case ModeMultiple:
	default:
		return domain.TemplateBundle{}, domain.Invalid("mode", "unknown mode %q", mode)
	}

	if rec.HasTemplates() {
		metrics.CacheHit("templates")
		return s.cachedBundle(ctx, rec)
	}

	v, err, _ := s.flight.Do("templates:"+id, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		rec, err := s.load(ctx, id)
		if err != nil {
			return domain.TemplateBundle{}, err
		}
		if rec.HasTemplates() {
			metrics.CacheHit("templates")
			return s.cachedBundle(ctx, rec)
		}
		metrics.CacheMiss("templates")
		return s.generateTemplates(ctx, rec, ModeMultiple)
	})
	if err != nil {
		return domain.TemplateBundle{}, err
	}
	return v.(domain.TemplateBundle), nil
}

// cachedBundle serves stored templates, re-uploading the ARM file only when its URL is missing.
func (s *Service) cachedBundle(ctx context.Context, rec *domain.Record) (domain.TemplateBundle, error) {
	b := domain.BundleFromRecord(rec)
	if b.ArmURL != "" {
		return b, nil
	}
	link, err := s.uploadArm(ctx, rec.ID, b.ArmTemplate)
	if err != nil {
		return domain.TemplateBundle{}, err
	}
	if err := s.save(ctx, rec.ID, domain.ChangeSet{domain.FieldArmURL: link}); err != nil {
		return domain.TemplateBundle{}, err
	}
	b.ArmURL = link
	return b, nil
}

func (s *Service) uploadArm(ctx context.Context, id, arm string) (string, error) {
	return s.upload(ctx, s.Config.TemplateContainer, id+".json", []byte(arm), "application/json", s.Config.TemplateURLExpiry)
}

func (s *Service) generateTemplates(ctx context.Context, rec *domain.Record, mode Mode) (domain.TemplateBundle, error) {
	text, err := s.AI.GenerateTemplates(ctx, rec.JoinedComponents())
	if err != nil {
		return domain.TemplateBundle{}, domain.Upstream("generate templates", err)
	}
	b, err := prompt.ParseTemplateBundle(text)
	if err != nil {
		s.logger().Warn("no usable template in completion", zap.String("id", rec.ID), zap.Int("length", len(text)))
		return domain.TemplateBundle{}, domain.ErrNoTemplateGenerated
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = domain.DefaultTemplateName(rec.Components)
	}
	if strings.TrimSpace(b.Description) == "" {
		b.Description = domain.DefaultTemplateDescription(rec.Components)
	}

	link, err := s.uploadArm(ctx, rec.ID, b.ArmTemplate)
	if err != nil {
		return domain.TemplateBundle{}, err
	}
	b.ArmURL = link

	cs := domain.ChangeSet{domain.FieldArmURL: link}
	if mode == ModeMultiple {
		cs[domain.FieldTemplateName] = b.Name
		cs[domain.FieldTemplateDescription] = b.Description
		cs[domain.FieldBicepTemplate] = b.BicepTemplate
		cs[domain.FieldArmTemplate] = b.ArmTemplate
	}
	if err := s.save(ctx, rec.ID, cs); err != nil {
		return domain.TemplateBundle{}, err
	}
	s.logger().Info("templates generated", zap.String("id", rec.ID), zap.String("mode", string(mode)), zap.String("name", b.Name))
	return b, nil
}

func isLink(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// folderName keeps the architecture name readable and path-safe.
func folderName(name, suffix string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return suffix
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n', '\r':
			return '-'
		}
		return r
	}, name)
	return name + "-" + suffix
}

// PublishToRegistry commits a template to the registry under a fresh folder.
// It never touches analysis records.
func (s *Service) PublishToRegistry(ctx context.Context, ref, architectureName string) (PublishResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return PublishResult{}, domain.Invalid("template", "template link or content is required")
	}

	content := []byte(ref)
	if isLink(ref) {
		cctx, cancel := s.bounded(ctx)
		data, err := s.Blobs.Fetch(cctx, ref)
		cancel()
		if err != nil {
			return PublishResult{}, domain.Upstream("fetch template", err)
		}
		content = data
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return PublishResult{}, domain.Invalid("template", "template content is empty")
	}

	folder := folderName(architectureName, uuid.NewString())
	filePath := path.Join(s.Config.PathPrefix, folder, s.Config.FileName)

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	sha, err := s.Registry.BranchHead(cctx, s.Config.Branch)
	if err != nil {
		return PublishResult{}, domain.Upstream("registry branch", err)
	}
	err = s.Registry.CreateFile(cctx, domain.FileCommit{
		Path:    filePath,
		Content: content,
		Branch:  s.Config.Branch,
		Message: s.Config.CommitMessage,
		BaseSHA: sha,
	})
	if err != nil {
		return PublishResult{}, domain.Upstream("registry publish", err)
	}

	s.logger().Info("template published", zap.String("path", filePath), zap.String("base", sha))
	return PublishResult{
		Folder:      folder,
		DisplayName: domain.DisplayFolderName(folder),
		Path:        filePath,
		RegistryURL: s.Config.RegistryURL,
	}, nil
}

// PackageDemoBundle zips the cached templates with demo metadata and returns a short-lived link.
func (s *Service) PackageDemoBundle(ctx context.Context, id, title, description, imageURL string) (string, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if !rec.HasTemplates() {
		return "", domain.ErrNoTemplateAvailable
	}

	cached := domain.BundleFromRecord(rec)
	if strings.TrimSpace(title) == "" {
		title = cached.Name
	}
	if strings.TrimSpace(description) == "" {
		description = cached.Description
	}
	if strings.TrimSpace(imageURL) == "" {
		imageURL = rec.ImageURL
	}

	d := s.Config.Demo
	meta := archive.DemoMetadata{
		Title:       title,
		Description: description,
		Preview:     imageURL,
		Website:     d.Website,
		Author:      d.Author,
		Source:      d.Source,
		Tags:        rec.Components,
		DemoGuide:   d.DemoGuide,
		Cost:        d.Cost,
		DeployTime:  d.DeployTime,
		Prereqs:     d.Prereqs,
	}
	zipped, err := archive.BuildDemoZip(meta, rec.ArmTemplate, rec.BicepTemplate)
	if err != nil {
		return "", fmt.Errorf("build demo package: %w", err)
	}

	link, err := s.upload(ctx, s.Config.PackageContainer, id+".zip", zipped, "application/zip", s.Config.PackageURLExpiry)
	if err != nil {
		return "", err
	}
	if err := s.save(ctx, id, domain.ChangeSet{domain.FieldZipURL: link}); err != nil {
		// link tetap valid walau cache gagal
		s.logger().Warn("zip url not cached", zap.String("id", id), zap.Error(err))
	}
	s.logger().Info("demo package ready", zap.String("id", id), zap.Int("bytes", len(zipped)))
	return link, nil
}

// IsSoft reports errors that should render as an empty/explanatory result.
func IsSoft(err error) bool {
	return errors.Is(err, domain.ErrNoTemplateGenerated)
}
