// Package pipeline provides configuration options for the ingest workers.
package pipeline

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chunkflow/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Worker roles.
const (
	RoleRouter     = "router"
	RolePDFParser  = "pdf-parser"
	RoleDOCXParser = "docx-parser"
	RoleXLSXParser = "xlsx-parser"
	RoleChunking   = "chunking"
)

// AllRoles lists every worker role.
var AllRoles = []string{RoleRouter, RolePDFParser, RoleDOCXParser, RoleXLSXParser, RoleChunking}

// Options 定义 ingest worker 配置。
type Options struct {
	// Roles 当前进程运行的角色。
	Roles []string `json:"roles" mapstructure:"roles"`

	// RouterInstances 路由器并发实例数。
	RouterInstances int `json:"router-instances" mapstructure:"router-instances"`
	// ParserInstances 每个解析队列的并发实例数。
	ParserInstances int `json:"parser-instances" mapstructure:"parser-instances"`
	// ChunkingInstances 分块消费者并发实例数。
	ChunkingInstances int `json:"chunking-instances" mapstructure:"chunking-instances"`

	// MaxChunkSize 单个分块的最大字符数（rune）。
	MaxChunkSize int `json:"max-chunk-size" mapstructure:"max-chunk-size"`
	// ChunkOverlap 相邻分块的重叠字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	// MaxComponentSize 分块组件的最大字符数。
	MaxComponentSize int `json:"max-component-size" mapstructure:"max-component-size"`

	// MaxPDFPages 本地 PDF 解析的页数上限，0 表示不限制。
	MaxPDFPages int `json:"max-pdf-pages" mapstructure:"max-pdf-pages"`
	// OCREndpoint 外部解析服务地址，用于图片和表格。
	OCREndpoint string `json:"ocr-endpoint" mapstructure:"ocr-endpoint"`
	// OCRToken 外部解析服务的访问令牌。
	OCRToken string `json:"-" mapstructure:"ocr-token"`
	// ParserTimeout 外部解析服务的请求超时。
	ParserTimeout time.Duration `json:"parser-timeout" mapstructure:"parser-timeout"`
	// ParserRetries 外部解析服务单次调用内的重试次数。
	ParserRetries int `json:"parser-retries" mapstructure:"parser-retries"`

	// ShutdownTimeout 优雅退出等待时间。
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions 创建默认 worker 配置。
func NewOptions() *Options {
	return &Options{
		Roles:             slices.Clone(AllRoles),
		RouterInstances:   2,
		ParserInstances:   1,
		ChunkingInstances: 1,
		MaxChunkSize:      8000,
		ChunkOverlap:      100,
		MaxComponentSize:  1000,
		MaxPDFPages:       0,
		ParserTimeout:     5 * time.Minute,
		ParserRetries:     1,
		ShutdownTimeout:   30 * time.Second,
	}
}

// AddFlags 注册命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pipeline."
	fs.StringSliceVar(&o.Roles, p+"roles", o.Roles, "Worker roles to run: router, pdf-parser, docx-parser, xlsx-parser, chunking.")
	fs.IntVar(&o.RouterInstances, p+"router-instances", o.RouterInstances, "Concurrent router consumers.")
	fs.IntVar(&o.ParserInstances, p+"parser-instances", o.ParserInstances, "Concurrent consumers per parser queue.")
	fs.IntVar(&o.ChunkingInstances, p+"chunking-instances", o.ChunkingInstances, "Concurrent chunking consumers.")
	fs.IntVar(&o.MaxChunkSize, p+"max-chunk-size", o.MaxChunkSize, "Maximum chunk size in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared by adjacent chunks.")
	fs.IntVar(&o.MaxComponentSize, p+"max-component-size", o.MaxComponentSize, "Maximum chunk component size in characters.")
	fs.IntVar(&o.MaxPDFPages, p+"max-pdf-pages", o.MaxPDFPages, "Reject PDFs with more pages (0 = unlimited).")
	fs.StringVar(&o.OCREndpoint, p+"ocr-endpoint", o.OCREndpoint, "External parser endpoint for images and spreadsheets.")
	fs.StringVar(&o.OCRToken, p+"ocr-token", o.OCRToken, "External parser bearer token (or OCR_TOKEN env var).")
	fs.DurationVar(&o.ParserTimeout, p+"parser-timeout", o.ParserTimeout, "External parser request timeout.")
	fs.IntVar(&o.ParserRetries, p+"parser-retries", o.ParserRetries, "External parser retries per attempt.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout.")
}

// Complete 从环境变量补全敏感配置。
func (o *Options) Complete() error {
	if o.OCRToken == "" {
		o.OCRToken = os.Getenv("OCR_TOKEN")
	}
	return nil
}

// Validate 校验配置。
func (o *Options) Validate() error {
	var errs []error
	if len(o.Roles) == 0 {
		errs = append(errs, fmt.Errorf("pipeline.roles must not be empty"))
	}
	for _, r := range o.Roles {
		if !slices.Contains(AllRoles, r) {
			errs = append(errs, fmt.Errorf("pipeline.roles: unknown role %q", r))
		}
	}
	if o.RouterInstances < 1 || o.ParserInstances < 1 || o.ChunkingInstances < 1 {
		errs = append(errs, fmt.Errorf("pipeline instance counts must be >= 1"))
	}
	if o.MaxChunkSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max-chunk-size must be >= 1"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.MaxChunkSize {
		errs = append(errs, fmt.Errorf("pipeline.chunk-overlap must be in [0, max-chunk-size)"))
	}
	if o.MaxComponentSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max-component-size must be >= 1"))
	}
	if o.MaxPDFPages < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-pdf-pages must be >= 0"))
	}
	if o.ParserRetries < 0 {
		errs = append(errs, fmt.Errorf("pipeline.parser-retries must be >= 0"))
	}
	return utilerrors.NewAggregate(errs)
}

// HasRole 报告是否运行指定角色。
func (o *Options) HasRole(role string) bool {
	return slices.Contains(o.Roles, role)
}
