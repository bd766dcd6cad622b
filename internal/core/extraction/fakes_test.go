package extraction

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kirillkom/document-intake/internal/core/ports"
)

type chatFake struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     []ports.CompletionRequest
}

func (f *chatFake) Complete(_ context.Context, req ports.CompletionRequest) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.responses[req.SchemaName]), nil
}

func (f *chatFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
