// Package i18n resolves the user's language and renders the small set of
// user-facing strings the service produces.
package i18n

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	English            = language.English
	TraditionalChinese = language.MustParse("zh-Hant")

	supported = []language.Tag{English, TraditionalChinese}
	matcher   = language.NewMatcher(supported)
)

// Notice keys. The English text doubles as the key.
const (
	NoticeCameraUnavailable    = "Camera is not available on this device."
	NoticePermissionDenied     = "Camera access was denied. Please allow camera access and try again."
	NoticeEmptySearch          = "Please enter an email address to search."
	NoticePendingReview        = "Your companion registration is under review. You can search once it is approved."
	NoticeVerificationRequired = "Please verify your identity before adding companions."
	NoticeSubmissionFailed     = "Submission failed. Please try again."
	NoticeInvalidImage         = "The selected file is not a valid image."
	NoticeDocumentRequired     = "Please capture your document and choose its type first."
	NoticeLivenessRequired     = "Please complete face verification first."
)

// Liveness prompts shown while the face is captured
const (
	PromptBlink     = "Please blink your eyes"
	PromptTurnLeft  = "Please turn your head left"
	PromptTurnRight = "Please turn your head right"
	PromptSmile     = "Please smile"
)

func init() {
	zh := TraditionalChinese
	message.SetString(zh, NoticeCameraUnavailable, "此裝置無法使用相機。")
	message.SetString(zh, NoticePermissionDenied, "相機權限被拒絕，請允許存取相機後重試。")
	message.SetString(zh, NoticeEmptySearch, "請輸入要搜尋的電郵地址。")
	message.SetString(zh, NoticePendingReview, "您的同行人登記正在審核中，審核通過後即可搜尋。")
	message.SetString(zh, NoticeVerificationRequired, "新增同行人前請先完成身份驗證。")
	message.SetString(zh, NoticeSubmissionFailed, "提交失敗，請重試。")
	message.SetString(zh, NoticeInvalidImage, "所選檔案不是有效的圖片。")
	message.SetString(zh, NoticeDocumentRequired, "請先拍攝證件並選擇證件類型。")
	message.SetString(zh, NoticeLivenessRequired, "請先完成人臉驗證。")

	message.SetString(zh, PromptBlink, "請眨眨眼")
	message.SetString(zh, PromptTurnLeft, "請向左轉頭")
	message.SetString(zh, PromptTurnRight, "請向右轉頭")
	message.SetString(zh, PromptSmile, "請微笑")

	message.SetString(zh, "Just now", "剛剛")
	message.SetString(zh, "%d minutes ago", "%d 分鐘前")
	message.SetString(zh, "%d hours ago", "%d 小時前")
	message.SetString(zh, "%d days ago", "%d 天前")
}

// Supported returns the languages the service renders
func Supported() []language.Tag {
	out := make([]language.Tag, len(supported))
	copy(out, supported)
	return out
}

// Match picks the best supported language for a tag or Accept-Language
// style list. Unknown input falls back to English.
func Match(value string) language.Tag {
	value = strings.TrimSpace(value)
	if value == "" {
		return English
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Printer returns a message printer for tag
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// Notice renders a notice key in the given language
func Notice(tag language.Tag, key string) string {
	return Printer(tag).Sprintf(key)
}

// AgeLabel renders how long ago something happened
func AgeLabel(tag language.Tag, age time.Duration) string {
	p := Printer(tag)
	switch {
	case age < time.Minute:
		return p.Sprintf("Just now")
	case age < time.Hour:
		return p.Sprintf("%d minutes ago", int(age/time.Minute))
	case age < 24*time.Hour:
		return p.Sprintf("%d hours ago", int(age/time.Hour))
	default:
		return p.Sprintf("%d days ago", int(age/(24*time.Hour)))
	}
}
