package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"gopkg.in/yaml.v3"
)

const defaultDir = "targets"

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// Profile is a saved migration target: a database config stored under an
// alias.
type Profile struct {
	Name     string
	Path     string
	Type     string
	Database string
	Modified time.Time
}

// Manager keeps migration targets as YAML files in one directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns the targets sorted by name, optionally only those of one
// database type. Files that do not parse as a config are skipped.
func (m *Manager) List(dbType string) ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	var wanted string
	if dbType != "" {
		probe := config.Config{Database: config.DatabaseConfig{Type: dbType}}
		probe.ApplyDefaults()
		wanted = probe.Database.Type
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || !hasYAMLExt(entry.Name()) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		cfg, err := config.LoadConfig(path)
		if err != nil {
			continue
		}
		if wanted != "" && cfg.Database.Type != wanted {
			continue
		}

		var modified time.Time
		if info, err := entry.Info(); err == nil {
			modified = info.ModTime()
		}
		profiles = append(profiles, Profile{
			Name:     strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:     path,
			Type:     cfg.Database.Type,
			Database: databaseLabel(cfg),
			Modified: modified,
		})
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Save validates cfg and stores it under alias.
func (m *Manager) Save(alias string, cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return Profile{}, err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("failed to create profile directory: %w", err)
	}

	base := strings.TrimSpace(alias)
	if base == "" {
		base = fmt.Sprintf("%s-%s", cfg.Database.Type, time.Now().Format("20060102_150405"))
	}
	base = ensureYAMLExt(sanitizeName(base))

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	path := filepath.Join(m.dir, base)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, fmt.Errorf("failed to write profile: %w", err)
	}

	return Profile{
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Path:     path,
		Type:     cfg.Database.Type,
		Database: databaseLabel(cfg),
		Modified: time.Now(),
	}, nil
}

// Load reads a target by alias or by file path.
func (m *Manager) Load(ref string) (*config.Config, error) {
	path, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

func (m *Manager) Delete(ref string) error {
	path, err := m.resolve(ref)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("profile not found: %s", ref)
	}
	return os.Remove(path)
}

func (m *Manager) resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}
	if strings.ContainsRune(ref, os.PathSeparator) {
		return ref, nil
	}
	return filepath.Join(m.dir, ensureYAMLExt(ref)), nil
}

func databaseLabel(cfg *config.Config) string {
	if cfg.Database.Type == config.TypeSQLite {
		return cfg.Database.Path
	}
	return fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
}

func hasYAMLExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func ensureYAMLExt(name string) string {
	if hasYAMLExt(name) {
		return name
	}
	return name + ".yaml"
}

func sanitizeName(input string) string {
	cleaned := fileNameSanitizer.ReplaceAllString(input, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
