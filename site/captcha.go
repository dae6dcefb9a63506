package site

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Captcha kinds shown on the login page.
const (
	CaptchaMath = "math"
	CaptchaWord = "word"
	CaptchaText = "text"
)

// CaptchaKinds lists every supported kind.
var CaptchaKinds = []string{CaptchaMath, CaptchaWord, CaptchaText}

var captchaWords = []string{"加法", "减法", "乘法", "除法", "开始", "结束", "确认", "取消"}

const captchaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// captcha is a small challenge shown on the login page. Word captchas are
// answered by clicking one of Options.
type captcha struct {
	Kind     string
	Question string
	Options  []string
	Answer   string
}

// newCaptcha picks one of kinds at random; an empty list allows all kinds.
func newCaptcha(r *rand.Rand, kinds []string) *captcha {
	if len(kinds) == 0 {
		kinds = CaptchaKinds
	}
	switch kinds[r.IntN(len(kinds))] {
	case CaptchaWord:
		return newWordCaptcha(r)
	case CaptchaText:
		return newTextCaptcha(r)
	default:
		return newMathCaptcha(r)
	}
}

func newMathCaptcha(r *rand.Rand) *captcha {
	a := r.IntN(20) + 1
	b := r.IntN(20) + 1
	hi, lo := max(a, b), min(a, b)

	var op string
	var answer int
	switch r.IntN(3) {
	case 0:
		op, answer = "+", hi+lo
	case 1:
		op, answer = "-", hi-lo
	default:
		op, answer = "*", hi*lo
	}
	return &captcha{
		Kind:     CaptchaMath,
		Question: fmt.Sprintf("%d %s %d = ?", hi, op, lo),
		Answer:   strconv.Itoa(answer),
	}
}

// newWordCaptcha asks for the target word among four distinct shuffled
// options.
func newWordCaptcha(r *rand.Rand) *captcha {
	perm := r.Perm(len(captchaWords))
	options := make([]string, 4)
	for i := range options {
		options[i] = captchaWords[perm[i]]
	}
	target := options[0]
	r.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return &captcha{
		Kind:     CaptchaWord,
		Question: "Click: " + target,
		Options:  options,
		Answer:   target,
	}
}

func newTextCaptcha(r *rand.Rand) *captcha {
	var sb strings.Builder
	for range 4 {
		sb.WriteByte(captchaAlphabet[r.IntN(len(captchaAlphabet))])
	}
	return &captcha{
		Kind:     CaptchaText,
		Question: "Enter the characters: " + sb.String(),
		Answer:   sb.String(),
	}
}
