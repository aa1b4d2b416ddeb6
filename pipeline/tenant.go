package pipeline

import (
	"fmt"

	"github.com/compresr/agent-pipeline/budget"
)

// Tenant references a tenant with an optional inline budget override for
// the duration of the call.
type Tenant struct {
	ID     string
	Budget *budget.TenantOverride
}

// TenantIDer is implemented by caller types that carry their own tenant id.
type TenantIDer interface {
	TenantID() string
}

// resolveTenant normalizes the supported tenant shapes: nil (untenanted),
// a plain string id, a Tenant value with inline budget override, or any
// type implementing TenantIDer. Anything else fails closed.
func resolveTenant(v any) (string, *budget.TenantOverride, error) {
	switch t := v.(type) {
	case nil:
		return "", nil, nil
	case string:
		return t, nil, nil
	case Tenant:
		return t.ID, t.Budget, nil
	case *Tenant:
		if t == nil {
			return "", nil, nil
		}
		return t.ID, t.Budget, nil
	case TenantIDer:
		return t.TenantID(), nil, nil
	default:
		return "", nil, &ValidationError{Msg: fmt.Sprintf("unsupported tenant shape %T", v)}
	}
}
