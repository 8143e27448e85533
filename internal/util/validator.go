package util

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,49}$`)

// Now retorna o instante atual em UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// IsValidEmail valida o formato do endereço.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// IsValidUsername aceita nomes minúsculos de 3 a 50 caracteres, começando
// por letra ou dígito.
func IsValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

// NormalizeUsername padroniza o identificador de login.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail padroniza o endereço para armazenamento e busca.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
