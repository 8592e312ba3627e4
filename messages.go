package fieldcrypt

import "strings"

const (
	LocaleEnglish    = "en"
	LocalePortuguese = "pt-BR"
)

var userMessages = map[string]map[Code]string{
	LocaleEnglish: {
		CodeMissingKey:         "Encryption is not configured. Please contact support.",
		CodeInvalidKey:         "Encryption is misconfigured. Please contact support.",
		CodeCorruptedData:      "Some of your data could not be read.",
		CodeDecryptionFailed:   "Some of your data could not be read.",
		CodeEncryptionFailed:   "Your data could not be saved securely. Please try again.",
		CodeKeyVersionNotFound: "Your data was protected with a key that is no longer available.",
		"":                     "An unexpected error occurred.",
	},
	LocalePortuguese: {
		CodeMissingKey:         "A criptografia não está configurada. Entre em contato com o suporte.",
		CodeInvalidKey:         "A criptografia está mal configurada. Entre em contato com o suporte.",
		CodeCorruptedData:      "Alguns dos seus dados não puderam ser lidos.",
		CodeDecryptionFailed:   "Alguns dos seus dados não puderam ser lidos.",
		CodeEncryptionFailed:   "Não foi possível salvar seus dados com segurança. Tente novamente.",
		CodeKeyVersionNotFound: "Seus dados foram protegidos com uma chave que não está mais disponível.",
		"":                     "Ocorreu um erro inesperado.",
	},
}

// UserMessage maps err to a generic message safe to show end users. Cipher
// details never appear in the output. Unknown locales fall back to English;
// a bare language tag such as "pt" selects its regional variant.
func UserMessage(err error, locale string) string {
	if err == nil {
		return ""
	}
	messages := messagesFor(locale)
	code, _ := CodeOf(err)
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[""]
}

func messagesFor(locale string) map[Code]string {
	if m, ok := userMessages[locale]; ok {
		return m
	}
	lang, _, _ := strings.Cut(strings.ReplaceAll(locale, "_", "-"), "-")
	for tag, m := range userMessages {
		if strings.EqualFold(tag, locale) || strings.HasPrefix(strings.ToLower(tag), strings.ToLower(lang)+"-") || strings.EqualFold(tag, lang) {
			return m
		}
	}
	return userMessages[LocaleEnglish]
}
