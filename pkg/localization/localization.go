// Package localization holds the user-facing strings of the login broker,
// keyed by message key and language tag. Lookups fall back to English when a
// translation is missing.
package localization

import (
	"sort"

	"golang.org/x/text/language"
)

// Message keys used by the broker itself. Callers may add their own keys for
// custom login pages.
const (
	KeyLoginPageTitle = "login_page_title"
	KeyClose          = "close"
	KeyLoginTitle     = "login_title"
	KeyLoginDesc      = "login_description"
	KeyEmail          = "email"
	KeyPassword       = "password"
	KeyLogin          = "login"

	KeyVerificationTitle = "verification_title"
	KeyVerificationDesc  = "verification_description"

	KeyCompleteTitle          = "complete_title"
	KeyCompleteDesc           = "complete_description"
	KeyCompleteDescNoRedirect = "complete_description_no_redirect"

	KeyFieldsEmpty         = "fields_empty"
	KeyDefaultErrorTitle   = "default_error_title"
	KeyDefaultErrorMessage = "default_error_message"

	KeyInvalidBodyTitle   = "invalid_request_body_title"
	KeyInvalidBodyMessage = "invalid_request_body_message"

	KeyLoginFailedTitle   = "login_failed_title"
	KeyLoginFailedMessage = "login_failed_message"

	KeyVerificationFailedTitle   = "verification_failed_title"
	KeyVerificationFailedMessage = "verification_failed_message"
)

const fallbackLanguage = "en"

// Table maps message key -> language tag -> string.
type Table map[string]map[string]string

// Default returns the built-in table.
func Default() Table {
	return Table{
		KeyLoginPageTitle: {
			"en": "Login page",
			"ru": "Страница входа",
		},
		KeyClose: {
			"en": "Close",
			"ru": "Закрыть",
		},
		KeyLoginTitle: {
			"en": "Login with HoYoLab",
			"ru": "Вход через HoYoLab",
		},
		KeyLoginDesc: {
			"en": "<span>Note:</span> We are not affiliated with HoYoLab.",
			"ru": "<span>Обратите внимание:</span> Мы не связаны с HoYoLab.",
		},
		KeyEmail: {
			"en": "Email",
			"ru": "Почта",
		},
		KeyPassword: {
			"en": "Password",
			"ru": "Пароль",
		},
		KeyLogin: {
			"en": "Login",
			"ru": "Войти",
		},
		KeyVerificationTitle: {
			"en": "Email verification",
			"ru": "Проверка почты",
		},
		KeyVerificationDesc: {
			"en": "Enter the code sent to your email.",
			"ru": "Введите код, отправленный вам на почту.",
		},
		KeyCompleteTitle: {
			"en": "Authorized",
			"ru": "Авторизован",
		},
		KeyCompleteDesc: {
			"en": "Redirecting you in ||seconds|| seconds...",
			"ru": "Перенаправление через ||seconds|| секунд...",
		},
		KeyCompleteDescNoRedirect: {
			"en": "You can now close this window.",
			"ru": "Вы можете закрыть это окно.",
		},
		KeyFieldsEmpty: {
			"en": "Some fields are empty.",
			"ru": "Некоторые поля пустые.",
		},
		KeyDefaultErrorTitle: {
			"en": "Something went wrong",
			"ru": "Что-то пошло не так",
		},
		KeyDefaultErrorMessage: {
			"en": "Unexpected error occurred when requesting the server. Status - ||status||.",
			"ru": "При выполнение запроса произошла непредвиденная ошибка. Статус - ||status||.",
		},
		KeyInvalidBodyTitle: {
			"en": "Invalid request body.",
			"ru": "Неверное тело запроса.",
		},
		KeyInvalidBodyMessage: {
			"en": "Request body is invalid. Please report this error to the developer or try again later.",
			"ru": "Некорректное тело запроса. Пожалуйста, сообщите об этой ошибке разработчику или попробуйте позже.",
		},
		KeyLoginFailedTitle: {
			"en": "Login failed.",
			"ru": "Вход не удался.",
		},
		KeyLoginFailedMessage: {
			"en": "Could not login into your account. Please check your credentials and try again.",
			"ru": "Не удалось войти в аккаунт. Пожалуйста, проверьте ваши данные и попробуйте снова.",
		},
		KeyVerificationFailedTitle: {
			"en": "Email verification failed.",
			"ru": "Проверка почты не удалась.",
		},
		KeyVerificationFailedMessage: {
			"en": "Could not verify your email. Please check the code and try again.",
			"ru": "Не удалось проверить вашу почту. Пожалуйста, проверьте код и попробуйте снова.",
		},
	}
}

// Merge returns a copy of t with the overrides applied. Overrides merge per
// key and language, so a caller can translate a single message without
// restating the whole table.
func (t Table) Merge(overrides Table) Table {
	merged := make(Table, len(t)+len(overrides))
	for key, langs := range t {
		entry := make(map[string]string, len(langs))
		for lang, s := range langs {
			entry[lang] = s
		}
		merged[key] = entry
	}

	for key, langs := range overrides {
		entry, ok := merged[key]
		if !ok {
			entry = make(map[string]string, len(langs))
			merged[key] = entry
		}
		for lang, s := range langs {
			entry[lang] = s
		}
	}

	return merged
}

// Resolve returns the string for key in the closest matching language,
// falling back to English when the tag is unknown or untranslated.
func (t Table) Resolve(key, lang string) string {
	entries := t[key]
	if len(entries) == 0 {
		return ""
	}

	if s, ok := entries[lang]; ok {
		return s
	}

	// BCP-47 matching so e.g. "en-US" finds "en" and "zh-HK" finds "zh-hk".
	candidates := make([]string, 0, len(entries))
	for candidate := range entries {
		if candidate != fallbackLanguage {
			candidates = append(candidates, candidate)
		}
	}
	sort.Strings(candidates)

	// The fallback goes first: NewMatcher returns its first tag when
	// nothing matches well enough.
	tags := make([]language.Tag, 0, len(candidates)+1)
	tags = append(tags, language.Make(fallbackLanguage))
	for _, candidate := range candidates {
		tag, err := language.Parse(candidate)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}

	desired, err := language.Parse(lang)
	if err != nil {
		return entries[fallbackLanguage]
	}

	matcher := language.NewMatcher(tags)
	if _, idx, conf := matcher.Match(desired); conf >= language.High && idx > 0 {
		return entries[candidates[idx-1]]
	}

	return entries[fallbackLanguage]
}
