package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const validTemplates = `[{"name":"Web tier","description":"VM with storage","bicepTemplate":"resource vm 'Microsoft.Compute/virtualMachines@2023-03-01' = {}","armTemplate":"{\"resources\":[]}"}]`

var armURLPattern = regexp.MustCompile(`^https://blob\.test/arm-templates/[0-9A-Z]{26}\.json\?sig=[a-z0-9]+&expires=86400$`)

// ---- fakes ----

type blobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saves   int
	failPut error
	fetched map[string][]byte
}

func newBlobStore() *blobStore {
	return &blobStore{objects: map[string][]byte{}, fetched: map[string][]byte{}}
}

func (b *blobStore) Save(ctx context.Context, container, name string, r io.Reader, size int64, _ string) error {
	if b.failPut != nil {
		return b.failPut
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("save called without deadline")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	b.objects[container+"/"+name] = data
	return nil
}

func (b *blobStore) SignedURL(_ context.Context, container, name string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.test/%s/%s?sig=abc123&expires=%d", container, name, int(expiry.Seconds())), nil
}

func (b *blobStore) Fetch(_ context.Context, link string) ([]byte, error) {
	data, ok := b.fetched[link]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

func (b *blobStore) object(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key]
}

type generator struct {
	mu           sync.Mutex
	describe     string
	templates    []string
	describeErr  error
	templateErr  error
	gate         chan struct{}
	entered      chan struct{}
	describeN    int
	architectN   int
	templateN    int
	lastImageURL string
}

func (g *generator) DescribeImage(_ context.Context, imageURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.describeN++
	g.lastImageURL = imageURL
	return g.describe, g.describeErr
}

func (g *generator) ExplainArchitecture(_ context.Context, components string) (string, error) {
	g.mu.Lock()
	g.architectN++
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	return "## Architectures for " + components, nil
}

func (g *generator) GenerateTemplates(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.templateN++
	if g.templateErr != nil {
		return "", g.templateErr
	}
	i := g.templateN - 1
	if i >= len(g.templates) {
		i = len(g.templates) - 1
	}
	return g.templates[i], nil
}

func (g *generator) counts() (int, int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.describeN, g.architectN, g.templateN
}

type registry struct {
	commits []domain.FileCommit
	headErr error
	putErr  error
}

func (r *registry) BranchHead(_ context.Context, branch string) (string, error) {
	if r.headErr != nil {
		return "", r.headErr
	}
	return "sha-" + branch, nil
}

func (r *registry) CreateFile(_ context.Context, c domain.FileCommit) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.commits = append(r.commits, c)
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

type fixture struct {
	svc   *Service
	repo  *memory.AnalysisRepository
	blobs *blobStore
	gen   *generator
	reg   *registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memory.NewAnalysisRepository(),
		blobs: newBlobStore(),
		gen:   &generator{describe: "VM, storage", templates: []string{validTemplates}},
		reg:   &registry{},
	}
	f.svc = &Service{
		Repo:     f.repo,
		Blobs:    f.blobs,
		AI:       f.gen,
		Registry: f.reg,
		Clock:    fixedClock{},
		Log:      zaptest.NewLogger(t),
		Config: Config{
			ImageContainer:    "images",
			TemplateContainer: "arm-templates",
			PackageContainer:  "demo-packages",
			CallTimeout:       5 * time.Second,
			ImageURLExpiry:    5 * 365 * 24 * time.Hour,
			TemplateURLExpiry: 24 * time.Hour,
			PackageURLExpiry:  24 * time.Hour,
			Branch:            "main",
			PathPrefix:        "BicepDemoRegistry",
			FileName:          "bicepTemplate.bicep",
			CommitMessage:     "Add new Bicep template",
			RegistryURL:       "https://github.com/contoso/templates/tree/main/BicepDemoRegistry",
			Demo:              DemoDefaults{Author: "Scribble to Azure", Cost: "0", DeployTime: "10"},
		},
	}
	return f
}

func (f *fixture) seed(t *testing.T, cs domain.ChangeSet) string {
	t.Helper()
	id := domain.NewID()
	require.NoError(t, f.repo.Upsert(context.Background(), id, cs))
	return id
}

// ---- StartAnalysis ----

func TestStartAnalysis(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.StartAnalysis(context.Background(), strings.NewReader("png-bytes"), "Sketch.PNG")
	require.NoError(t, err)

	assert.True(t, domain.ValidID(res.ID))
	assert.Equal(t, []string{"VM", "storage"}, res.Components)
	assert.Empty(t, res.Notice)
	blob := "20260504030201-" + res.ID + ".png"
	assert.Equal(t, "https://blob.test/images/"+blob+"?sig=abc123&expires=157680000", res.ImageURL)
	assert.Equal(t, []byte("png-bytes"), f.blobs.object("images/"+blob))
	assert.Equal(t, res.ImageURL, f.gen.lastImageURL)

	rec, err := f.repo.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Components, rec.Components)
	assert.Equal(t, res.ImageURL, rec.ImageURL)
}

func TestStartAnalysisDescriptionNotFound(t *testing.T) {
	f := newFixture(t)
	f.gen.describe = "   "
	res, err := f.svc.StartAnalysis(context.Background(), strings.NewReader("x"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, DescriptionNotFound, res.Notice)
	assert.Empty(t, res.Components)

	rec, err := f.repo.Get(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Components)

	// nothing to describe: no upstream call
	detail, err := f.svc.GetArchitectureDetail(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Empty(t, detail)
	_, calls, _ := f.gen.counts()
	assert.Zero(t, calls)
}

func TestStartAnalysisStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.failPut = errors.New("disk full")
	_, err := f.svc.StartAnalysis(context.Background(), strings.NewReader("x"), "a.png")
	assert.True(t, domain.IsUpstream(err))
	assert.ErrorContains(t, err, "disk full")
	d, _, _ := f.gen.counts()
	assert.Zero(t, d)
}

func TestStartAnalysisCompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.describeErr = errors.New("model unavailable")
	_, err := f.svc.StartAnalysis(context.Background(), strings.NewReader("x"), "a.png")
	assert.True(t, domain.IsUpstream(err))
}

func TestStartAnalysisEmptyUpload(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartAnalysis(context.Background(), strings.NewReader(""), "a.png")
	assert.True(t, domain.IsValidation(err))
}

// ---- GetArchitectureDetail ----

func TestArchitectureDetailGeneratedOnce(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM", "storage"}, domain.FieldImageURL: "https://img"})

	first, err := f.svc.GetArchitectureDetail(context.Background(), id)
	require.NoError(t, err)
	second, err := f.svc.GetArchitectureDetail(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "## Architectures for VM, storage", first)
	assert.Equal(t, first, second)
	_, calls, _ := f.gen.counts()
	assert.Equal(t, 1, calls)

	rec, _ := f.repo.Get(context.Background(), id)
	assert.Equal(t, "https://img", rec.ImageURL)
}

func TestArchitectureDetailNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetArchitectureDetail(context.Background(), domain.NewID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchitectureDetailConcurrentCallsShareOneCompletion(t *testing.T) {
	f := newFixture(t)
	f.gen.gate = make(chan struct{})
	f.gen.entered = make(chan struct{}, 8)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM"}})

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.svc.GetArchitectureDetail(context.Background(), id)
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	<-f.gen.entered
	time.Sleep(50 * time.Millisecond)
	close(f.gen.gate)
	wg.Wait()

	_, calls, _ := f.gen.counts()
	assert.Equal(t, 1, calls)
	for _, r := range results {
		assert.Equal(t, "## Architectures for VM", r)
	}
}

// ---- GetTemplates ----

func TestTemplatesSingleModeRejectsTwoComponents(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM", "storage"}})

	_, err := f.svc.GetTemplates(context.Background(), id, ModeSingle)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "single")
	_, _, calls := f.gen.counts()
	assert.Zero(t, calls)
}

func TestTemplatesEmptyComponentList(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldImageURL: "https://img"})
	_, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	assert.True(t, domain.IsValidation(err))
}

func TestTemplatesMultipleCachedAfterFirstCall(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM", "storage"}})

	first, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	require.NoError(t, err)
	second, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	require.NoError(t, err)

	assert.Equal(t, first.BicepTemplate, second.BicepTemplate)
	assert.Equal(t, first.ArmTemplate, second.ArmTemplate)
	assert.Equal(t, "Web tier", second.Name)
	assert.Equal(t, first.ArmURL, second.ArmURL)
	_, _, calls := f.gen.counts()
	assert.Equal(t, 1, calls)

	assert.Equal(t, []byte(`{"resources":[]}`), f.blobs.object("arm-templates/"+id+".json"))
}

func TestTemplatesSingleModePersistsOnlyArmURL(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM"}})

	b, err := f.svc.GetTemplates(context.Background(), id, ModeSingle)
	require.NoError(t, err)
	assert.NotEmpty(t, b.BicepTemplate)

	rec, _ := f.repo.Get(context.Background(), id)
	assert.Equal(t, b.ArmURL, rec.ArmURL)
	assert.Empty(t, rec.BicepTemplate)
	assert.Empty(t, rec.ArmTemplate)
	assert.Empty(t, rec.TemplateName)

	// single mode always regenerates
	_, err = f.svc.GetTemplates(context.Background(), id, ModeSingle)
	require.NoError(t, err)
	_, _, calls := f.gen.counts()
	assert.Equal(t, 2, calls)
}

func TestTemplatesUnparseableIsSoftFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.templates = []string{"{invalid"}
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM"}})

	_, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	assert.ErrorIs(t, err, domain.ErrNoTemplateGenerated)
	assert.True(t, IsSoft(err))

	rec, _ := f.repo.Get(context.Background(), id)
	assert.Empty(t, rec.ArmURL)
}

func TestTemplatesUpstreamErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.gen.templateErr = errors.New("timeout")
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM"}})

	_, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	assert.True(t, domain.IsUpstream(err))
	assert.False(t, IsSoft(err))
}

func TestTemplatesCachedWithoutArmURLReuploads(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{
		domain.FieldComponentList: []string{"VM"},
		domain.FieldBicepTemplate: "resource x",
		domain.FieldArmTemplate:   "{}",
	})

	b, err := f.svc.GetTemplates(context.Background(), id, ModeMultiple)
	require.NoError(t, err)
	assert.Equal(t, "Architecture with VM", b.Name)
	assert.NotEmpty(t, b.ArmURL)
	_, _, calls := f.gen.counts()
	assert.Zero(t, calls)

	rec, _ := f.repo.Get(context.Background(), id)
	assert.Equal(t, b.ArmURL, rec.ArmURL)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMultiple, m)
	m, err = ParseMode("Single")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, m)
	_, err = ParseMode("all")
	assert.True(t, domain.IsValidation(err))
}

// ---- PublishToRegistry ----

func TestPublishBlankReferenceRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PublishToRegistry(context.Background(), "", "anything")
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, f.reg.commits)
}

func TestPublishFetchesLink(t *testing.T) {
	f := newFixture(t)
	link := "https://blob.test/arm-templates/x.json?sig=1"
	f.blobs.fetched[link] = []byte(`{"resources":[]}`)

	res, err := f.svc.PublishToRegistry(context.Background(), link, "web app")
	require.NoError(t, err)

	require.Len(t, f.reg.commits, 1)
	c := f.reg.commits[0]
	assert.Equal(t, []byte(`{"resources":[]}`), c.Content)
	assert.Equal(t, "main", c.Branch)
	assert.Equal(t, "sha-main", c.BaseSHA)
	assert.Equal(t, "Add new Bicep template", c.Message)
	assert.True(t, strings.HasPrefix(res.Folder, "web-app-"))
	assert.Equal(t, "BicepDemoRegistry/"+res.Folder+"/bicepTemplate.bicep", c.Path)
	assert.Equal(t, res.Path, c.Path)
	assert.True(t, strings.HasSuffix(res.DisplayName, "..."))
	assert.Equal(t, f.svc.Config.RegistryURL, res.RegistryURL)
}

func TestPublishInlineContentWithoutName(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.PublishToRegistry(context.Background(), "resource sa 'x' = {}", "")
	require.NoError(t, err)
	assert.Len(t, res.Folder, 36)
	assert.Equal(t, []byte("resource sa 'x' = {}"), f.reg.commits[0].Content)
}

func TestPublishFolderNamesNeverCollide(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.PublishToRegistry(context.Background(), "x", "same")
	require.NoError(t, err)
	b, err := f.svc.PublishToRegistry(context.Background(), "x", "same")
	require.NoError(t, err)
	assert.NotEqual(t, a.Folder, b.Folder)
}

func TestPublishAdapterErrors(t *testing.T) {
	f := newFixture(t)
	f.reg.headErr = errors.New("branch not found")
	_, err := f.svc.PublishToRegistry(context.Background(), "x", "n")
	assert.True(t, domain.IsUpstream(err))
	assert.ErrorContains(t, err, "branch not found")

	f = newFixture(t)
	f.reg.putErr = errors.New("401 bad credentials")
	_, err = f.svc.PublishToRegistry(context.Background(), "x", "n")
	assert.ErrorContains(t, err, "bad credentials")

	f = newFixture(t)
	_, err = f.svc.PublishToRegistry(context.Background(), "https://blob.test/missing", "n")
	assert.True(t, domain.IsUpstream(err))
	assert.Empty(t, f.reg.commits)
}

// ---- PackageDemoBundle ----

func TestPackageRequiresCachedTemplates(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{domain.FieldComponentList: []string{"VM"}})
	_, err := f.svc.PackageDemoBundle(context.Background(), id, "t", "d", "")
	assert.ErrorIs(t, err, domain.ErrNoTemplateAvailable)

	_, err = f.svc.PackageDemoBundle(context.Background(), domain.NewID(), "t", "d", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPackageDemoBundle(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.ChangeSet{
		domain.FieldComponentList: []string{"VM", "storage"},
		domain.FieldImageURL:      "https://img",
		domain.FieldBicepTemplate: "resource x",
		domain.FieldArmTemplate:   `{"resources":[]}`,
	})

	link, err := f.svc.PackageDemoBundle(context.Background(), id, "My demo", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://blob.test/demo-packages/"+id+".zip?sig=abc123&expires=86400", link)

	data := f.blobs.object("demo-packages/" + id + ".zip")
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		rc.Close()
		names[zf.Name] = string(b)
	}
	assert.Equal(t, "resource x", names["main.bicep"])
	assert.Equal(t, `{"resources":[]}`, names["azuredeploy.json"])
	assert.Contains(t, names["metadata.json"], `"title": "My demo"`)
	assert.Contains(t, names["metadata.json"], `"preview": "https://img"`)
	assert.Contains(t, names["metadata.json"], `"description": "Deployment template for VM, storage"`)

	rec, _ := f.repo.Get(context.Background(), id)
	assert.Equal(t, link, rec.ZipURL)
}

// ---- end to end ----

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartAnalysis(ctx, strings.NewReader("sketch"), "board.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"VM", "storage"}, start.Components)

	detail, err := f.svc.GetArchitectureDetail(ctx, start.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, detail)
	rec, _ := f.repo.Get(ctx, start.ID)
	assert.Equal(t, detail, rec.ArchitectureDetail)

	first, err := f.svc.GetTemplates(ctx, start.ID, ModeMultiple)
	require.NoError(t, err)
	assert.NotEmpty(t, first.BicepTemplate)
	assert.NotEmpty(t, first.ArmTemplate)
	assert.Regexp(t, armURLPattern, first.ArmURL)

	again, err := f.svc.GetTemplates(ctx, start.ID, ModeMultiple)
	require.NoError(t, err)
	assert.Equal(t, []byte(first.BicepTemplate), []byte(again.BicepTemplate))
	assert.Equal(t, []byte(first.ArmTemplate), []byte(again.ArmTemplate))

	zipURL, err := f.svc.PackageDemoBundle(ctx, start.ID, "", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, zipURL)

	pub, err := f.svc.PublishToRegistry(ctx, first.BicepTemplate, first.Name)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pub.Folder, "Web-tier-"))

	d, a, tpl := f.gen.counts()
	assert.Equal(t, []int{1, 1, 1}, []int{d, a, tpl})

	ok, err := f.svc.DeleteAnalysis(ctx, start.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.svc.GetAnalysis(ctx, start.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
