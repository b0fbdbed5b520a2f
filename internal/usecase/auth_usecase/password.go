package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordRunes = 12
	// bcryptは72バイトまでしか見ない
	maxPasswordBytes = 72
	// これより短いローカル部は含んでいても弾かない
	minLocalPartCheck = 4
)

// 流出リストの上位で12文字以上のもの
var commonPasswords = map[string]struct{}{
	"123456789012":     {},
	"1234567890123":    {},
	"password1234":     {},
	"passwordpassword": {},
	"qwertyuiopas":     {},
	"qwerty123456":     {},
	"iloveyou1234":     {},
	"letmeinletmein":   {},
	"changeme1234":     {},
	"adminadmin12":     {},
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 登録とログインで同じ比較キーにする
func canonicalEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// "Name <a@b>" の形は受けない
func normalizeEmail(raw string) (string, error) {
	email := canonicalEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmailFormat
	}
	return email, nil
}

// emailは正規化済みであること
func checkPassword(password string, email string) error {
	if utf8.RuneCountInString(password) < minPasswordRunes {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}

	lower := strings.ToLower(password)
	if _, ok := commonPasswords[lower]; ok {
		return ErrWeakPassword
	}

	// 同じ文字の繰り返し
	first, _ := utf8.DecodeRuneInString(lower)
	if strings.Trim(lower, string(first)) == "" {
		return ErrWeakPassword
	}

	if at := strings.IndexByte(email, '@'); at >= minLocalPartCheck && strings.Contains(lower, email[:at]) {
		return ErrWeakPassword
	}
	return nil
}

type BcryptPasswordHasher struct {
	cost int
}

// 範囲外のcostはDefaultCost
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type BcryptPasswordVerifier struct{}

func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

// ハッシュが壊れていても不一致として扱う
func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
