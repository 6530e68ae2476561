// Package normalize mines wallet backend responses for payment signals.
//
// Backend response schemas are not contractually fixed: the same call may
// return {"status":"paid"}, {"result":{"payResult":{...}}} or a bare balance
// object depending on backend and version. Every extractor here is a pure
// function over a gjson tree with a fixed, ordered list of strategies:
// direct keys first, then depth-first recursion, first match wins.
package normalize

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// maxDepth caps recursive descent against pathological inputs.
const maxDepth = 8

var (
	affirmativeStatus = map[string]bool{"ok": true, "success": true, "paid": true, "settled": true, "completed": true}
	negativeStatus    = map[string]bool{"error": true, "failed": true, "rejected": true}

	successKeys  = []string{"success", "ok", "paid", "settled"}
	statusKeys   = []string{"status", "state"}
	preimageKeys = []string{"preimage", "payment_preimage", "paymentPreimage", "proof", "secret"}
	invoiceKeys  = []string{"invoice", "pr", "payment_request", "paymentRequest", "bolt11", "lightning_invoice"}
	errorKeys    = []string{"error", "message", "reason", "detail", "description"}
	balanceKeys  = []string{"balance", "balance_msat", "balanceMsat", "amount", "available", "total"}
	pendingKeys  = []string{"pending", "pending_msat", "pendingMsat", "outgoing_pending"}
	nestKeys     = []string{"data", "context", "result"}
)

// GenericErrorMessage is reported when a response signals an error without
// carrying a usable reason.
const GenericErrorMessage = "the backend reported an error"

// Success decides whether a backend response reports a settled payment.
// Strategies, in order: explicit boolean flags, affirmative/negative status
// strings (recursively, status/state fields preferred), a payResult object
// anywhere in the tree, a non-negative extractable balance, and finally the
// presence of a payment proof.
func Success(r gjson.Result) bool {
	if v, ok := successFlag(r, 0); ok {
		return v
	}
	if hasKeyDeep(r, "payResult", 0) {
		return true
	}
	if b, ok := Balance(r); ok && b >= 0 {
		return true
	}
	if _, ok := Preimage(r); ok {
		return true
	}
	return false
}

func successFlag(r gjson.Result, depth int) (bool, bool) {
	if depth > maxDepth || !r.IsObject() {
		return false, false
	}
	for _, k := range successKeys {
		v := r.Get(k)
		if v.Type == gjson.True || v.Type == gjson.False {
			return v.Bool(), true
		}
	}
	// status-style string fields beat other string fields
	for _, k := range statusKeys {
		v := r.Get(k)
		if v.Type == gjson.String {
			if f, ok := statusVerdict(v.Str); ok {
				return f, true
			}
		}
	}
	var out, found bool
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			if f, ok := statusVerdict(v.Str); ok {
				out, found = f, true
				return false
			}
		}
		return true
	})
	if found {
		return out, true
	}
	r.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			if f, ok := successFlag(v, depth+1); ok {
				out, found = f, true
				return false
			}
		}
		return true
	})
	return out, found
}

func statusVerdict(s string) (bool, bool) {
	s = strings.ToLower(s)
	if affirmativeStatus[s] {
		return true, true
	}
	if negativeStatus[s] {
		return false, true
	}
	return false, false
}

func hasKeyDeep(r gjson.Result, key string, depth int) bool {
	if depth > maxDepth || !r.IsObject() {
		return false
	}
	if r.Get(key).Exists() {
		return true
	}
	found := false
	r.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() && hasKeyDeep(v, key, depth+1) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Preimage extracts a payment proof: a 64-character lowercase hex string
// under one of the recognized keys, anywhere in the tree.
func Preimage(r gjson.Result) (string, bool) {
	return findString(r, preimageKeys, IsPreimage, 0)
}

// IsPreimage reports whether s looks like a settled-payment preimage.
func IsPreimage(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Invoice extracts a bolt11-looking payment request: any string with the
// case-insensitive prefix "ln" and more than 10 characters.
func Invoice(r gjson.Result) (string, bool) {
	if r.Type == gjson.String && looksLikeInvoice(r.Str) {
		return r.Str, true
	}
	return findString(r, invoiceKeys, looksLikeInvoice, 0)
}

func looksLikeInvoice(s string) bool {
	return len(s) > 10 && strings.HasPrefix(strings.ToLower(s), "ln")
}

// ErrorMessage extracts the first human-readable error reason. Direct keys
// win, then a status field saying "error" yields the generic message, and
// only then nested objects are searched.
func ErrorMessage(r gjson.Result) (string, bool) {
	for _, k := range errorKeys {
		v := r.Get(k)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str, true
		}
	}
	if v := r.Get("status"); v.Type == gjson.String && strings.EqualFold(v.Str, "error") {
		return GenericErrorMessage, true
	}
	return findString(r, errorKeys, nonEmpty, 0)
}

func nonEmpty(s string) bool { return s != "" }

// Balance extracts a balance amount in millisatoshis.
func Balance(r gjson.Result) (int64, bool) {
	return findAmount(r, balanceKeys, 0)
}

// Pending extracts a pending (in-flight) amount in millisatoshis.
func Pending(r gjson.Result) (int64, bool) {
	return findAmount(r, pendingKeys, 0)
}

// findString checks the recognized keys directly, then descends depth-first
// into nested objects and arrays. First match wins in field order.
func findString(r gjson.Result, keys []string, pred func(string) bool, depth int) (string, bool) {
	if depth > maxDepth {
		return "", false
	}
	for _, k := range keys {
		v := r.Get(k)
		if v.Type == gjson.String && pred(v.Str) {
			return v.Str, true
		}
	}
	var out string
	var found bool
	r.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			if s, ok := findString(v, keys, pred, depth+1); ok {
				out, found = s, ok
				return false
			}
		}
		return true
	})
	return out, found
}

// findAmount checks the recognized keys, then descends through the known
// nesting keys and through the balances/pending array fields, first element
// that yields a value wins.
func findAmount(r gjson.Result, keys []string, depth int) (int64, bool) {
	if depth > maxDepth {
		return 0, false
	}
	for _, k := range keys {
		v := r.Get(k)
		switch v.Type {
		case gjson.Number:
			return v.Int(), true
		case gjson.String:
			if n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64); err == nil {
				return n, true
			}
		}
	}
	for _, nk := range nestKeys {
		if v := r.Get(nk); v.IsObject() {
			if n, ok := findAmount(v, keys, depth+1); ok {
				return n, true
			}
		}
	}
	for _, ak := range []string{"balances", "pending"} {
		if v := r.Get(ak); v.IsArray() {
			var out int64
			var found bool
			v.ForEach(func(_, e gjson.Result) bool {
				if n, ok := findAmount(e, keys, depth+1); ok {
					out, found = n, ok
					return false
				}
				return true
			})
			if found {
				return out, true
			}
		}
	}
	return 0, false
}
