package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MaxContactNameLength  = 100
	MaxAddressLength      = 500
	MinProductNameLength  = 1
	MaxProductNameLength  = 200
	MaxDescriptionLength  = 5000
	MinPhoneDigits        = 6
	MaxPhoneDigits        = 15
	MaxExternalLinkLength = 500
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidatePhone допускает ведущий "+", пробелы, дефисы и скобки между цифрами.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("телефон обязателен")
	}

	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return fmt.Errorf("телефон содержит недопустимые символы")
		}
	}
	if digits < MinPhoneDigits || digits > MaxPhoneDigits {
		return fmt.Errorf("телефон должен содержать от %d до %d цифр", MinPhoneDigits, MaxPhoneDigits)
	}
	return nil
}

// ValidateProductName проверяет название товара в платёжной ссылке.
func ValidateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("название товара обязательно")
	}
	return ValidateLength("название товара", name, MinProductNameLength, MaxProductNameLength)
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string, max int) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}
	return ValidateLength("сообщение", content, 1, max)
}

// ValidateEvidenceLink принимает http(s) ссылку или путь к загруженному файлу.
func ValidateEvidenceLink(link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("ссылка на доказательство обязательна")
	}
	if err := ValidateLength("ссылка", link, 0, MaxExternalLinkLength); err != nil {
		return err
	}
	if strings.HasPrefix(link, "/") && !strings.HasPrefix(link, "//") {
		if strings.Contains(link, "..") {
			return fmt.Errorf("некорректный путь к файлу")
		}
		return nil
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}
	return nil
}
