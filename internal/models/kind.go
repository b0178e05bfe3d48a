package models

import (
	"fmt"

	"github.com/oficinahq/garagesync/internal/common"
)

// Kind identifies one of the fixed entity categories managed by the
// offline layer. The string values double as API path segments and as
// the kind tag in the local store.
type Kind string

const (
	KindMechanics     Kind = "mechanics"
	KindServiceOrders Kind = "service_orders"
	KindVouchers      Kind = "vouchers"
)

// Kinds returns all known entity kinds.
func Kinds() []Kind {
	return []Kind{KindMechanics, KindServiceOrders, KindVouchers}
}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMechanics, KindServiceOrders, KindVouchers:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a string (e.g. an URL segment) into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidKind, s)
	}
	return k, nil
}
