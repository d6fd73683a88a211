package attendance

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	payloadPrefix  = "attend:"
	minTokenLength = 16
	maxTokenLength = 128
)

var (
	codePattern  = regexp.MustCompile(`^\d{6}$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

type ParsedInput struct {
	Kind  Kind
	Value string
}

// ParseInput: スキャン結果 or 入力コードを解釈する。
//   - 6桁数字（"123 456" / "123-456" も可）→ コード
//   - "attend:<token>" / "...?token=<token>" の URL / 素のトークン → トークン
func ParseInput(raw string) (ParsedInput, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedInput{}, errInvalidToken()
	}

	if compact := strings.NewReplacer(" ", "", "-", "").Replace(s); codePattern.MatchString(compact) {
		return ParsedInput{Kind: KindCode, Value: compact}, nil
	}

	value := s
	switch {
	case strings.HasPrefix(strings.ToLower(s), payloadPrefix):
		value = s[len(payloadPrefix):]
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return ParsedInput{}, errInvalidToken()
		}
		value = u.Query().Get("token")
	}

	value = strings.TrimSpace(value)
	if len(value) < minTokenLength || len(value) > maxTokenLength || !tokenPattern.MatchString(value) {
		return ParsedInput{}, errInvalidToken()
	}
	return ParsedInput{Kind: KindToken, Value: value}, nil
}

// TokenPayload: QR に埋め込む文字列。baseURL があればスキャン用 URL にする
func TokenPayload(value, baseURL string) string {
	if baseURL == "" {
		return payloadPrefix + value
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + "token=" + url.QueryEscape(value)
}

// CodeDisplay: "123456" → "123 456"
func CodeDisplay(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[:3] + " " + code[3:]
}
