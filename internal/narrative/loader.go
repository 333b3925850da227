package narrative

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a caller does not name one.
const DefaultLanguage = "en"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Loader reads narrative templates from a directory of YAML files named
// "<modality>.v1.<lang>.yaml", falling back to "<modality>.v1.yaml".
type Loader struct {
	dir         string
	defaultLang string
	cache       *TemplateCache
	logger      *zap.Logger
}

// NewLoader creates a loader over dir. cache may be shared between loaders over the same dir.
func NewLoader(dir, defaultLang string, cache *TemplateCache, logger *zap.Logger) *Loader {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	if cache == nil {
		cache = NewTemplateCache(64, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, defaultLang: defaultLang, cache: cache, logger: logger}
}

func (l *Loader) Dir() string { return l.dir }

func (l *Loader) Cache() *TemplateCache { return l.cache }

// Load returns the template for modality in lang, reading it from disk on a cache miss.
// An empty lang means the loader's default language.
func (l *Loader) Load(modality, lang string) (*Template, error) {
	if lang == "" {
		lang = l.defaultLang
	}
	if !validName(modality) || !validName(lang) {
		return nil, fmt.Errorf("%w: modality %q language %q", ErrTemplateNotFound, modality, lang)
	}

	key := cacheKey(modality, lang)
	if tpl, ok := l.cache.Get(key); ok {
		return tpl, nil
	}

	candidates := []string{
		fmt.Sprintf("%s.v1.%s.yaml", modality, lang),
		fmt.Sprintf("%s.v1.yaml", modality),
	}

	var (
		content []byte
		path    string
	)
	for _, name := range candidates {
		p := filepath.Join(l.dir, name)
		b, err := os.ReadFile(p)
		if err == nil {
			content, path = b, p
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template %s: %w", p, err)
		}
	}
	if content == nil {
		return nil, fmt.Errorf("%w: modality %q language %q", ErrTemplateNotFound, modality, lang)
	}

	tpl, err := ParseTemplate(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.cache.Set(key, tpl)
	l.logger.Debug("narrative template loaded",
		zap.String("modality", modality),
		zap.String("language", lang),
		zap.String("path", path),
		zap.Int("steps", len(tpl.Steps)),
	)
	return tpl, nil
}

// LoadAll loads the default-language template of every modality found in the directory.
// Files that fail to load are logged and skipped.
func (l *Loader) LoadAll() (map[string]*Template, error) {
	modalities, err := l.Modalities()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Template, len(modalities))
	for _, m := range modalities {
		tpl, err := l.Load(m, "")
		if err != nil {
			l.logger.Warn("skipping narrative template",
				zap.String("modality", m),
				zap.Error(err),
			)
			continue
		}
		out[m] = tpl
	}
	return out, nil
}

// Modalities lists the distinct modalities with a template file in the directory, sorted.
func (l *Loader) Modalities() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		modality, _, _ := strings.Cut(e.Name(), ".")
		if validName(modality) {
			seen[modality] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Invalidate forces the next Load of modality to re-read it from disk.
func (l *Loader) Invalidate(modality string) {
	l.cache.Invalidate(modality)
}

// ParseTemplate decodes and checks one YAML template document.
func ParseTemplate(content []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(content, &tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if err := validate.Struct(tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &tpl, nil
}

// validName rejects anything that could escape the templates directory.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
