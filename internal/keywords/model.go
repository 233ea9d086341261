package keywords

import "github.com/reelrank/reelrank/internal/quota"

// GenerateRequest is the body of POST /api/v1/keywords.
type GenerateRequest struct {
	InputMethod string `json:"inputMethod" validate:"required,oneof=caption script title"`
	InputText   string `json:"inputText" validate:"required,min=10,max=2000"`
	Platform    string `json:"platform" validate:"required,oneof=youtube-shorts instagram-reels tiktok linkedin-video"`
}

type GenerateResult struct {
	Keywords []string    `json:"keywords"`
	Usage    quota.Usage `json:"usage"`
	// LimitReached is set when this generation used the last one in the
	// cycle, so the client can offer the email bonus.
	LimitReached bool `json:"limitReached"`
}

type ExplainRequest struct {
	Keyword     string `json:"keyword" validate:"required,max=100"`
	Platform    string `json:"platform" validate:"required,oneof=youtube-shorts instagram-reels tiktok linkedin-video"`
	InputMethod string `json:"inputMethod" validate:"required,oneof=caption script title"`
}

type ExplainResult struct {
	Explanation string `json:"explanation"`
}

var platformNames = map[string]string{
	"youtube-shorts":  "YouTube Shorts",
	"instagram-reels": "Instagram Reels",
	"tiktok":          "TikTok",
	"linkedin-video":  "LinkedIn Video",
}

func platformName(p string) string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return p
}
