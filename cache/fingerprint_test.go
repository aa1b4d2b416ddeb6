package cache

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySpecValidate(t *testing.T) {
	spec := KeySpec{
		IncludeParams: []string{"voice", "size"},
		ExcludeParams: []string{"trace_id"},
	}
	assert.NoError(t, spec.Validate())

	spec.ExcludeParams = append(spec.ExcludeParams, "voice")
	err := spec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"voice"`)
}

func TestFingerprintShape(t *testing.T) {
	spec := KeySpec{IncludeParams: []string{"voice"}}
	key := Fingerprint(spec, "tts", "2", "voice-1", map[string]string{"voice": "alloy"}, "hello")

	parts := strings.Split(key, ":")
	require.Len(t, parts, 7)
	assert.Equal(t, "agents", parts[0])
	assert.Equal(t, "cache", parts[1])
	assert.Equal(t, "tts", parts[2])
	assert.Equal(t, "2", parts[3])
	assert.Equal(t, "voice-1", parts[4])
	assert.Equal(t, "voice=alloy", parts[5])
	assert.Len(t, parts[6], 32, "truncated input hash")
}

func TestFingerprintSensitivity(t *testing.T) {
	spec := KeySpec{IncludeParams: []string{"voice"}}
	params := map[string]string{"voice": "alloy", "trace_id": "t-1"}

	base := Fingerprint(spec, "tts", "2", "voice-1", params, "hello")

	// Included param changes the key.
	changed := Fingerprint(spec, "tts", "2", "voice-1", map[string]string{"voice": "nova", "trace_id": "t-1"}, "hello")
	assert.NotEqual(t, base, changed)

	// Non-included params do not, even when they vary wildly.
	same := Fingerprint(spec, "tts", "2", "voice-1", map[string]string{"voice": "alloy", "trace_id": "t-999"}, "hello")
	assert.Equal(t, base, same)

	// Version, model and input each change the key.
	assert.NotEqual(t, base, Fingerprint(spec, "tts", "3", "voice-1", params, "hello"))
	assert.NotEqual(t, base, Fingerprint(spec, "tts", "2", "voice-2", params, "hello"))
	assert.NotEqual(t, base, Fingerprint(spec, "tts", "2", "voice-1", params, "goodbye"))
}

func TestFingerprintAbsentParamEqualsEmpty(t *testing.T) {
	spec := KeySpec{IncludeParams: []string{"voice"}}

	absent := Fingerprint(spec, "tts", "2", "voice-1", nil, "hello")
	empty := Fingerprint(spec, "tts", "2", "voice-1", map[string]string{"voice": ""}, "hello")
	assert.Equal(t, absent, empty)
}

func TestFingerprintCustomNamespace(t *testing.T) {
	spec := KeySpec{Namespace: "staging"}
	key := Fingerprint(spec, "chat", "1", "gpt-x", nil, "hi")
	assert.True(t, strings.HasPrefix(key, "staging:cache:"))
}

// Param order never matters: the include list is folded in sorted order.
func TestFingerprintDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("include order does not perturb the key", prop.ForAll(
		func(input string, a, b string) bool {
			params := map[string]string{"a": a, "b": b}
			fwd := Fingerprint(KeySpec{IncludeParams: []string{"a", "b"}}, "chat", "1", "m", params, input)
			rev := Fingerprint(KeySpec{IncludeParams: []string{"b", "a"}}, "chat", "1", "m", params, input)
			return fwd == rev
		},
		gen.AnyString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("equal inputs produce equal keys", prop.ForAll(
		func(input string) bool {
			spec := KeySpec{IncludeParams: []string{"lang"}}
			params := map[string]string{"lang": "en"}
			return Fingerprint(spec, "chat", "1", "m", params, input) ==
				Fingerprint(spec, "chat", "1", "m", params, input)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
