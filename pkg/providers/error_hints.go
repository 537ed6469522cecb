package providers

import "strings"

func augmentProviderError(message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "missing scopes: model.request") ||
		strings.Contains(lower, "insufficient permissions for this operation"):
		return msg + " Hint: the API key needs model.request access for this project."
	case strings.Contains(lower, "incorrect api key provided"):
		return msg + " Hint: set providers.openai.api_key (or CHATGPT_PROVIDERS_OPENAI_API_KEY) to a Platform API key."
	case strings.Contains(lower, "you exceeded your current quota"):
		return msg + " Hint: check the billing status of the OpenAI account."
	case strings.Contains(lower, "does not exist or you do not have access"):
		return msg + " Hint: run `chatgpt models` to list the models this key can use."
	}
	return msg
}
