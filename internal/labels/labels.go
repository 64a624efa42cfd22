// Package labels holds the short user-visible strings stored in a signature's
// label while it is processing or after it failed. The failure text doubles
// as the signature's name, so it has to stay short.
package labels

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a label in the catalog
type Key string

const (
	Processing     Key = "processing"
	NotConfigured  Key = "not_configured"
	ProcessingFail Key = "processing_failed"
	Unrecognized   Key = "unrecognized"
	InvalidKey     Key = "invalid_credential"
	RateLimited    Key = "rate_limited"
	Billing        Key = "insufficient_balance"
	ContentPolicy  Key = "content_policy"
	RequestFailed  Key = "request_failed"
	Network        Key = "network_error"
	UnknownVendor  Key = "unknown_provider"
)

var entries = map[language.Tag]map[Key]string{
	language.SimplifiedChinese: {
		Processing:     "识别中...",
		NotConfigured:  "未配置API Key",
		ProcessingFail: "处理错误",
		Unrecognized:   "未识别",
		InvalidKey:     "Key无效或无权限",
		RateLimited:    "请求太频繁",
		Billing:        "账户余额不足/欠费",
		ContentPolicy:  "图片内容违规",
		RequestFailed:  "请求失败 (%d)",
		Network:        "网络连接错误",
		UnknownVendor:  "无效的服务商配置",
	},
	language.English: {
		Processing:     "Recognizing...",
		NotConfigured:  "API key not configured",
		ProcessingFail: "Processing error",
		Unrecognized:   "Unrecognized",
		InvalidKey:     "Invalid key or no permission",
		RateLimited:    "Too many requests",
		Billing:        "Insufficient balance",
		ContentPolicy:  "Image rejected by content policy",
		RequestFailed:  "Request failed (%d)",
		Network:        "Network error",
		UnknownVendor:  "Unknown provider",
	},
}

var supported = []language.Tag{language.SimplifiedChinese, language.English}

// Catalog renders labels for one locale
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New builds a catalog for the closest supported match of locale.
// An empty or unparsable locale falls back to Simplified Chinese.
func New(locale string) (*Catalog, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.SimplifiedChinese))
	for tag, msgs := range entries {
		for key, msg := range msgs {
			if err := builder.SetString(tag, string(key), msg); err != nil {
				return nil, err
			}
		}
	}

	tag := language.SimplifiedChinese
	if locale != "" {
		if requested, err := language.Parse(locale); err == nil {
			matcher := language.NewMatcher(supported)
			_, index, confidence := matcher.Match(requested)
			if confidence != language.No {
				tag = supported[index]
			}
		}
	}

	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(builder)),
	}, nil
}

// Tag returns the locale the catalog renders
func (c *Catalog) Tag() language.Tag { return c.tag }

// Get renders the label for key
func (c *Catalog) Get(key Key, args ...interface{}) string {
	return c.printer.Sprintf(string(key), args...)
}
