package policy

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a keyword does not name a [Kind].
var ErrUnknownKind = errors.New("unknown rule kind")

// Kind identifies the statement grammar of a [Rule].
type Kind int

const (
	KindInvalid Kind = iota
	KindAllow
	KindAuditAllow
	KindDontAudit
	KindNeverAllow
	KindAllowXPerm
	KindDontAuditXPerm
	KindNeverAllowXPerm
	KindAttribute
	KindExpandAttribute
	KindType
	KindTypeAttribute
	KindTypeTransition
	KindGenFSCon
	KindPermissive
	// KindMacro is a synthesized macro call. The macro name is stored on the
	// rule, see [Rule.Macro].
	KindMacro
)

var kindKeywords = map[Kind]string{
	KindAllow:           "allow",
	KindAuditAllow:      "auditallow",
	KindDontAudit:       "dontaudit",
	KindNeverAllow:      "neverallow",
	KindAllowXPerm:      "allowxperm",
	KindDontAuditXPerm:  "dontauditxperm",
	KindNeverAllowXPerm: "neverallowxperm",
	KindAttribute:       "attribute",
	KindExpandAttribute: "expandattribute",
	KindType:            "type",
	KindTypeAttribute:   "typeattribute",
	KindTypeTransition:  "type_transition",
	KindGenFSCon:        "genfscon",
	KindPermissive:      "permissive",
	KindMacro:           "macro",
}

// AllKinds lists every valid statement kind, in declaration order.
var AllKinds = []Kind{
	KindAllow,
	KindAuditAllow,
	KindDontAudit,
	KindNeverAllow,
	KindAllowXPerm,
	KindDontAuditXPerm,
	KindNeverAllowXPerm,
	KindAttribute,
	KindExpandAttribute,
	KindType,
	KindTypeAttribute,
	KindTypeTransition,
	KindGenFSCon,
	KindPermissive,
	KindMacro,
}

// ParseKind returns the [Kind] for a source-level keyword.
func ParseKind(keyword string) (Kind, error) {
	for k, kw := range kindKeywords {
		if kw == keyword {
			return k, nil
		}
	}

	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, keyword)
}

func (k Kind) String() string {
	if kw, ok := kindKeywords[k]; ok {
		return kw
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsAccessVector reports whether k is one of the allow-family statements.
func (k Kind) IsAccessVector() bool {
	switch k {
	case KindAllow, KindAuditAllow, KindDontAudit, KindNeverAllow:
		return true
	case KindInvalid, KindAllowXPerm, KindDontAuditXPerm, KindNeverAllowXPerm,
		KindAttribute, KindExpandAttribute, KindType, KindTypeAttribute,
		KindTypeTransition, KindGenFSCon, KindPermissive, KindMacro:
		return false
	}

	return false
}

// IsExtendedPerm reports whether k is one of the xperm statements.
func (k Kind) IsExtendedPerm() bool {
	switch k {
	case KindAllowXPerm, KindDontAuditXPerm, KindNeverAllowXPerm:
		return true
	case KindInvalid, KindAllow, KindAuditAllow, KindDontAudit, KindNeverAllow,
		KindAttribute, KindExpandAttribute, KindType, KindTypeAttribute,
		KindTypeTransition, KindGenFSCon, KindPermissive, KindMacro:
		return false
	}

	return false
}

// IsAttributeFamily reports whether rules of kind k only declare or assign
// attributes. The compiler can derive the same attribute rule from several
// distinct statements, so removing one twice is tolerated.
func (k Kind) IsAttributeFamily() bool {
	switch k {
	case KindAttribute, KindTypeAttribute:
		return true
	case KindInvalid, KindAllow, KindAuditAllow, KindDontAudit, KindNeverAllow,
		KindAllowXPerm, KindDontAuditXPerm, KindNeverAllowXPerm,
		KindExpandAttribute, KindType, KindTypeTransition, KindGenFSCon,
		KindPermissive, KindMacro:
		return false
	}

	return false
}
