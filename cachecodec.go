package byokit

import (
	"encoding/json"

	"github.com/byokit/byokit/provider"
)

// encodeChatResponse and decodeChatResponse marshal a ChatResponse to the
// byte slice the Cache backend stores, keeping the Cache package itself
// ignorant of any particular response shape.
func encodeChatResponse(resp *provider.ChatResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeChatResponse(raw []byte) (*provider.ChatResponse, error) {
	var resp provider.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
