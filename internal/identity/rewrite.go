// Package identity rewrites an environment's author-supplied symbolic keys
// into generated, hierarchically-scoped identifiers.
//
// The rewrite runs in two explicit phases: connections first, building a
// symbolic-key to generated-id table, then pipelines as a pure second pass
// consuming that table. Secret references of the form "secret.<name>" in
// connection credential fields are redirected to the parameter store path
// the secret will be written to. The package performs no I/O; apart from
// the injected IDSource it is a pure transformation.
package identity

import (
	"sort"
	"strings"

	"github.com/systmms/specdeploy/pkg/paramstore"
)

// secretPrefix marks a symbolic secret reference in a connection field.
const secretPrefix = "secret."

// credentialFields are the connection fields that may carry secret
// references.
var credentialFields = []string{"password", "client_secret"}

// RefKind discriminates the two classes of symbolic reference.
type RefKind string

const (
	// RefSecret is a connection credential field referencing a secret name.
	RefSecret RefKind = "secret"
	// RefConnection is a pipeline entry referencing a connection key.
	RefConnection RefKind = "connection"
)

// UnresolvedRef records a symbolic reference that named a symbol absent
// from this rewrite pass. The original value passes through unchanged;
// the caller decides whether that is a warning or a hard error.
type UnresolvedRef struct {
	Kind   RefKind
	Owner  string // symbolic key of the connection or pipeline holding the reference
	Field  string // field (connection) or connection-type label (pipeline)
	Symbol string // the symbol that did not resolve
}

// Result is the output of one environment rewrite.
type Result struct {
	// Config is a deep copy of the input tree with connections and
	// pipelines re-keyed by their generated identifiers.
	Config map[string]interface{}

	// PipelineIDs lists generated pipeline identifiers in encounter order.
	PipelineIDs []string

	// PipelineKeyMap maps each original pipeline symbolic key to its
	// generated identifier.
	PipelineKeyMap map[string]string

	// ConnectionKeyMap maps each original connection symbolic key to its
	// generated identifier.
	ConnectionKeyMap map[string]string

	// Unresolved lists every symbolic reference that did not resolve
	// against this pass.
	Unresolved []UnresolvedRef
}

// Rewrite produces the rewritten tree for one environment. secrets holds
// the environment's extracted secret names (values are not consulted);
// clientTag scopes generated identifiers, clientID and envID scope the
// secret parameter paths.
//
// Symbolic keys are visited in sorted order so that encounter order, and
// with it the generated artifacts, is stable for a given IDSource.
func Rewrite(cfg map[string]interface{}, secretNames map[string]bool, clientTag, clientID, envID string, src IDSource) Result {
	out := Result{
		Config:           deepCopyMap(cfg),
		PipelineKeyMap:   map[string]string{},
		ConnectionKeyMap: map[string]string{},
	}

	rewriteConnections(&out, secretNames, clientTag, clientID, envID, src)
	rewritePipelines(&out, clientTag, src)

	return out
}

// rewriteConnections is phase one: assign connection identifiers, build
// the symbol table, and redirect secret references to parameter paths.
func rewriteConnections(out *Result, secretNames map[string]bool, clientTag, clientID, envID string, src IDSource) {
	raw, ok := out.Config["connections"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return
	}

	rewritten := make(map[string]interface{}, len(raw))
	for _, key := range sortedKeys(raw) {
		conn, ok := raw[key].(map[string]interface{})
		if !ok {
			// Not an object; carry it through under its original key.
			rewritten[key] = raw[key]
			continue
		}

		id := NewID(clientTag, "con", src)
		conn["id"] = id
		out.ConnectionKeyMap[key] = id

		for _, field := range credentialFields {
			value, ok := conn[field].(string)
			if !ok || !strings.HasPrefix(value, secretPrefix) {
				continue
			}
			name := strings.TrimPrefix(value, secretPrefix)
			if secretNames[name] {
				conn[field] = paramstore.SecretPath(clientID, envID, name)
			} else {
				out.Unresolved = append(out.Unresolved, UnresolvedRef{
					Kind:   RefSecret,
					Owner:  key,
					Field:  field,
					Symbol: name,
				})
			}
		}

		rewritten[id] = conn
	}
	out.Config["connections"] = rewritten
}

// rewritePipelines is phase two: assign pipeline identifiers and replace
// connection symbolic keys using the phase-one symbol table.
func rewritePipelines(out *Result, clientTag string, src IDSource) {
	raw, ok := out.Config["pipelines"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return
	}

	rewritten := make(map[string]interface{}, len(raw))
	for _, key := range sortedKeys(raw) {
		pipe, ok := raw[key].(map[string]interface{})
		if !ok {
			rewritten[key] = raw[key]
			continue
		}

		id := NewID(clientTag, "pipe", src)
		pipe["id"] = id
		out.PipelineIDs = append(out.PipelineIDs, id)
		out.PipelineKeyMap[key] = id

		if conns, ok := pipe["connections"].(map[string]interface{}); ok {
			for _, connType := range sortedKeys(conns) {
				symbol, ok := conns[connType].(string)
				if !ok {
					continue
				}
				if connID, ok := out.ConnectionKeyMap[symbol]; ok {
					conns[connType] = connID
				} else {
					out.Unresolved = append(out.Unresolved, UnresolvedRef{
						Kind:   RefConnection,
						Owner:  key,
						Field:  connType,
						Symbol: symbol,
					})
				}
			}
		}

		rewritten[id] = pipe
	}
	out.Config["pipelines"] = rewritten
}

// deepCopyMap copies a JSON-shaped tree so the caller's input is never
// mutated.
func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
