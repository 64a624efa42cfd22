package recognition

import "sort"

// Provider ids
const (
	ProviderZhipu     = "zhipu"
	ProviderAliyun    = "aliyun"
	ProviderTesseract = "tesseract"
)

// DefaultProvider is used when no provider has been saved yet
const DefaultProvider = ProviderZhipu

// Provider describes one recognition service
type Provider struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Endpoint           string `json:"endpoint,omitempty"`
	Model              string `json:"model,omitempty"`
	RequiresCredential bool   `json:"requires_credential"`
}

var providers = map[string]Provider{
	ProviderZhipu: {
		ID:                 ProviderZhipu,
		Name:               "智谱AI (GLM-4V-Flash)",
		Endpoint:           "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		Model:              "glm-4v-flash",
		RequiresCredential: true,
	},
	ProviderAliyun: {
		ID:                 ProviderAliyun,
		Name:               "阿里云 (Qwen-VL-Max)",
		Endpoint:           "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
		Model:              "qwen-vl-max",
		RequiresCredential: true,
	},
	ProviderTesseract: {
		ID:                 ProviderTesseract,
		Name:               "Tesseract (local)",
		RequiresCredential: false,
	},
}

// LookupProvider returns the descriptor for id
func LookupProvider(id string) (Provider, bool) {
	p, ok := providers[id]
	return p, ok
}

// Providers lists every known provider ordered by id
func Providers() []Provider {
	list := make([]Provider, 0, len(providers))
	for _, p := range providers {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
