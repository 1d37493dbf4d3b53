package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyspace(t *testing.T) {
	tests := []struct {
		args []any
		want string
	}{
		{[]any{"get", "session:abc"}, "session"},
		{[]any{"set", "lock:trip:V1", "x"}, "lock"},
		{[]any{"geoadd", "vehicles:locations", 51.5, 25.3, "V1"}, "vehicles"},
		{[]any{"publish", "sync:riders", "1"}, "sync"},
		{[]any{"get", "plain"}, "plain"},
		{[]any{"ping"}, "redis"},
		{[]any{"select", 2}, "redis"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keyspace(tt.args), "%v", tt.args)
	}
}
