package cli

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_TokenFlow(t *testing.T) {
	v := newVault(t)

	out, err := v.run("exec", "token.mint", "--args", `{"account":"alice","amount":100}`)
	require.NoError(t, err)
	assert.Contains(t, out, "token.mint done")

	resp, err := v.runJSON("exec", "token.transfer", "--args", `{"from":"alice","to":"bob","amount":40}`)
	require.NoError(t, err)
	d := data(t, resp)
	assert.Equal(t, "done", d["state"])
	assert.Equal(t, "token.transfer", d["contract"])
	assert.Len(t, d["blocks"], 3)
	result := d["result"].(map[string]any)
	assert.Equal(t, float64(60), result["from"].(map[string]any)["balance"])

	id, err := uuid.Parse(d["execution_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	out, err = v.run("get", "bal:bob")
	require.NoError(t, err)
	assert.Equal(t, "{\"balance\":40}\n", out)

	_, err = v.run("verify")
	require.NoError(t, err)
}

func TestExec_Failure(t *testing.T) {
	v := newVault(t)

	out, err := v.run("exec", "token.transfer", "--args", `{"from":"alice","to":"bob","amount":1}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PROCEDURE: insufficient balance")

	resp, err := v.runJSON("exec", "token.transfer", "--args", `{"from":"alice","to":"alice","amount":1}`)
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_EXECUTION_FAILED", resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, "failed", details["state"])
	assert.Equal(t, "PROCEDURE", details["failure"].(map[string]any)["kind"])
}

func TestExec_ExplicitID(t *testing.T) {
	v := newVault(t)

	args := []string{"exec", "wishlist.add", "--args", `{"owner":"ana","item":"bike"}`, "--id", "wish-1"}
	resp, err := v.runJSON(args...)
	require.NoError(t, err)
	assert.Equal(t, "wish-1", data(t, resp)["execution_id"])

	// A fresh process does not remember the id, but the procedure refuses
	// the duplicate item.
	_, err = v.run(args...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestExec_CommandErrors(t *testing.T) {
	v := newVault(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad json", []string{"exec", "token.balance", "--args", `{`}},
		{"not an object", []string{"exec", "token.balance", "--args", `[1]`}},
		{"int overflow", []string{"exec", "token.balance", "--args", `{"account":"a","x":9223372036854775808}`}},
		{"unknown contract", []string{"exec", "token.steal"}},
		{"unknown definition", []string{"exec", "--definition", "ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestContracts(t *testing.T) {
	v := newVault(t)

	out, err := v.run("contracts")
	require.NoError(t, err)
	for _, name := range []string{"token.transfer", "curve.buy", "wishlist.reserve", "chat.post"} {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, "saved as")

	resp, err := v.runJSON("contracts", "--save")
	require.NoError(t, err)
	infos, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, infos, 12)

	var addDef string
	for _, raw := range infos {
		info := raw.(map[string]any)
		assert.NotEmpty(t, info["code_ref"])
		assert.NotEmpty(t, info["definition"])
		if info["name"] == "wishlist.add" {
			addDef = info["definition"].(string)
		}
	}
	require.NotEmpty(t, addDef)

	out, err = v.run("exec", "--definition", addDef, "--args", `{"owner":"ana","item":"lamp"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "wishlist.add done")

	out, err = v.run("block", addDef)
	require.NoError(t, err)
	assert.Contains(t, out, "contract-definition")
}
