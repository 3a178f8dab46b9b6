package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agent-crawler/utils"
)

// Defaults for a plain run with no file, flags or environment.
const (
	DefaultBaseURL          = "https://www.sothebysrealty.com/eng/associates/seattle-wa-usa"
	DefaultOutputPath       = "sothebysrealty.json"
	DefaultCardSelector     = `div[class*="card-container"]`
	DefaultPageLinkPattern  = `-pg`
	DefaultPageTokenPattern = `(\d+)-pg`
	DefaultStartPage        = 2
	DefaultMaxPages         = 500
	DefaultFirstPageSettle  = 2 * time.Second
	DefaultPageSettle       = time.Second
	DefaultPageInterval     = time.Second
	DefaultRenderTimeout    = 60 * time.Second
	DefaultElementTimeout   = 10 * time.Second
	DefaultUserAgent        = "AgentCrawler/1.0"
)

const (
	RendererBrowser = "browser"
	RendererStatic  = "static"

	FormatJSON  = "json"
	FormatJSONL = "jsonl"

	ModeAppend   = "append"
	ModeTruncate = "truncate"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrNoBaseURL       = errors.New("invalid base url: must be an absolute http(s) url")
	ErrInvalidRenderer = errors.New("invalid renderer: must be browser or static")
	ErrInvalidFormat   = errors.New("invalid output format: must be json or jsonl")
	ErrInvalidMode     = errors.New("invalid output mode: must be append or truncate")
	ErrInvalidDriver   = errors.New("invalid database driver: must be postgres or sqlite")
	ErrNoOutput        = errors.New("no output: set an output path or a database")
	ErrInvalidStart    = errors.New("invalid start page: must be at least 1")
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")
	ErrInvalidDuration = errors.New("invalid duration: must be non-negative")
)

type Config struct {
	BaseURL string `yaml:"base_url"`

	Renderer        string        `yaml:"renderer"`
	BrowserPath     string        `yaml:"browser_path"`
	Headless        bool          `yaml:"headless"`
	FirstPageSettle time.Duration `yaml:"first_page_settle"`
	PageSettle      time.Duration `yaml:"page_settle"`
	PageInterval    time.Duration `yaml:"page_interval"`
	RenderTimeout   time.Duration `yaml:"render_timeout"`
	WaitSelector    string        `yaml:"wait_selector"`
	ElementTimeout  time.Duration `yaml:"element_timeout"`
	UserAgent       string        `yaml:"user_agent"`

	CardSelector       string `yaml:"card_selector"`
	PageLinkPattern    string `yaml:"page_link_pattern"`
	PageTokenPattern   string `yaml:"page_token_pattern"`
	StartPage          int    `yaml:"start_page"`
	MaxPages           int    `yaml:"max_pages"`
	SkipDuplicatePages bool   `yaml:"skip_duplicate_pages"`

	OutputPath     string `yaml:"output_path"`
	OutputFormat   string `yaml:"output_format"`
	OutputMode     string `yaml:"output_mode"`
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		Renderer:           RendererBrowser,
		Headless:           true,
		FirstPageSettle:    DefaultFirstPageSettle,
		PageSettle:         DefaultPageSettle,
		PageInterval:       DefaultPageInterval,
		RenderTimeout:      DefaultRenderTimeout,
		ElementTimeout:     DefaultElementTimeout,
		UserAgent:          DefaultUserAgent,
		CardSelector:       DefaultCardSelector,
		PageLinkPattern:    DefaultPageLinkPattern,
		PageTokenPattern:   DefaultPageTokenPattern,
		StartPage:          DefaultStartPage,
		MaxPages:           DefaultMaxPages,
		SkipDuplicatePages: true,
		OutputPath:         DefaultOutputPath,
		OutputFormat:       FormatJSON,
		OutputMode:         ModeAppend,
		LogLevel:           "info",
	}
}

// Load layers the optional YAML file at path, then .env and the process
// environment, over Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.BaseURL = utils.NormalizeBaseURL(cfg.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	env := &envReader{}

	c.BaseURL = env.str("CRAWLER_BASE_URL", c.BaseURL)
	c.Renderer = env.str("CRAWLER_RENDERER", c.Renderer)
	c.BrowserPath = env.str("CRAWLER_BROWSER_PATH", c.BrowserPath)
	c.Headless = env.boolean("CRAWLER_HEADLESS", c.Headless)
	c.FirstPageSettle = env.duration("CRAWLER_FIRST_PAGE_SETTLE", c.FirstPageSettle)
	c.PageSettle = env.duration("CRAWLER_PAGE_SETTLE", c.PageSettle)
	c.PageInterval = env.duration("CRAWLER_PAGE_INTERVAL", c.PageInterval)
	c.RenderTimeout = env.duration("CRAWLER_RENDER_TIMEOUT", c.RenderTimeout)
	c.WaitSelector = env.str("CRAWLER_WAIT_SELECTOR", c.WaitSelector)
	c.ElementTimeout = env.duration("CRAWLER_ELEMENT_TIMEOUT", c.ElementTimeout)
	c.UserAgent = env.str("USER_AGENT", c.UserAgent)
	c.CardSelector = env.str("CRAWLER_CARD_SELECTOR", c.CardSelector)
	c.PageLinkPattern = env.str("CRAWLER_PAGE_LINK_PATTERN", c.PageLinkPattern)
	c.PageTokenPattern = env.str("CRAWLER_PAGE_TOKEN_PATTERN", c.PageTokenPattern)
	c.StartPage = env.integer("CRAWLER_START_PAGE", c.StartPage)
	c.MaxPages = env.integer("CRAWLER_MAX_PAGES", c.MaxPages)
	c.SkipDuplicatePages = env.boolean("CRAWLER_SKIP_DUPLICATE_PAGES", c.SkipDuplicatePages)
	c.OutputPath = env.str("CRAWLER_OUTPUT_PATH", c.OutputPath)
	c.OutputFormat = env.str("CRAWLER_OUTPUT_FORMAT", c.OutputFormat)
	c.OutputMode = env.str("CRAWLER_OUTPUT_MODE", c.OutputMode)
	c.DatabaseDriver = env.str("CRAWLER_DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = env.str("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = env.str("CRAWLER_LOG_LEVEL", c.LogLevel)

	return env.err
}

func (c *Config) Validate() error {
	if !utils.IsValidURL(c.BaseURL) {
		return fmt.Errorf("%w: %q", ErrNoBaseURL, c.BaseURL)
	}
	if c.Renderer != RendererBrowser && c.Renderer != RendererStatic {
		return fmt.Errorf("%w: %q", ErrInvalidRenderer, c.Renderer)
	}
	if c.OutputFormat != FormatJSON && c.OutputFormat != FormatJSONL {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.OutputFormat)
	}
	if c.OutputMode != ModeAppend && c.OutputMode != ModeTruncate {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.OutputMode)
	}
	switch c.DatabaseDriver {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.DatabaseDriver)
	}
	if c.OutputPath == "" && (c.DatabaseDriver == "" || c.DatabaseURL == "") {
		return ErrNoOutput
	}
	if c.StartPage < 1 {
		return ErrInvalidStart
	}
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	for _, d := range []time.Duration{c.FirstPageSettle, c.PageSettle, c.PageInterval, c.RenderTimeout, c.ElementTimeout} {
		if d < 0 {
			return ErrInvalidDuration
		}
	}
	if c.CardSelector == "" {
		return errors.New("invalid card selector: must not be empty")
	}
	for _, p := range []string{c.PageLinkPattern, c.PageTokenPattern} {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid page pattern %q: %w", p, err)
		}
	}
	return nil
}

// envReader reads typed overrides and keeps the first parse failure.
type envReader struct {
	err error
}

func (e *envReader) str(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func (e *envReader) integer(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return n
}

func (e *envReader) boolean(key string, defaultVal bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return b
}

func (e *envReader) duration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(key, err)
		return defaultVal
	}
	return d
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
