package policy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PermSorter orders permissions of a class into their canonical order.
type PermSorter interface {
	SortPerms(class string, perms []string)
}

func (r *Rule) String() string {
	return Format(r, nil)
}

// Format renders the rule in policy source syntax. When ps is nil,
// permissions are rendered in lexical order.
func Format(r *Rule, ps PermSorter) string {
	p := r.parts

	switch r.kind {
	case KindAllow, KindAuditAllow, KindDontAudit, KindNeverAllow:
		class := p[2].String()
		perms := slices.Clone(r.args.Items())
		if ps != nil {
			ps.SortPerms(class, perms)
		}

		return fmt.Sprintf("%s %s %s:%s %s;", r.kind, p[0], p[1], class, joinArgs(perms))

	case KindAllowXPerm, KindDontAuditXPerm, KindNeverAllowXPerm:
		return fmt.Sprintf("%s %s %s:%s %s %s;", r.kind, p[0], p[1], p[2], p[3], joinArgs(IoctlRanges(r.args.Items())))

	case KindType:
		if r.args.Empty() {
			return fmt.Sprintf("type %s;", p[0])
		}

		return fmt.Sprintf("type %s, %s;", p[0], strings.Join(r.args.Items(), ", "))

	case KindTypeTransition:
		if r.args.Empty() {
			return fmt.Sprintf("type_transition %s %s:%s %s;", p[0], p[1], p[2], p[3])
		}

		return fmt.Sprintf("type_transition %s %s:%s %s %s;", p[0], p[1], p[2], p[3], strconv.Quote(r.args.Items()[0]))

	case KindGenFSCon:
		return fmt.Sprintf("genfscon %s %s %s", p[0], p[1], p[2])

	case KindAttribute, KindExpandAttribute, KindTypeAttribute, KindPermissive:
		return fmt.Sprintf("%s %s;", r.kind, strings.Join(partStrings(p), " "))

	case KindMacro:
		return fmt.Sprintf("%s(%s)", r.macro, strings.Join(partStrings(p), ", "))

	case KindInvalid:
	}

	return ""
}

func joinArgs(args []string) string {
	if len(args) == 1 {
		return args[0]
	}

	return "{ " + strings.Join(args, " ") + " }"
}

// NormalizeIoctl parses a hexadecimal ioctl number and returns it in its
// canonical lowercase `0x` form without leading zeros.
func NormalizeIoctl(v string) (string, error) {
	n, err := parseIoctl(v)
	if err != nil {
		return "", err
	}

	return "0x" + strconv.FormatUint(n, 16), nil
}

func parseIoctl(v string) (uint64, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")

	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse ioctl %q: %w", v, err)
	}

	return n, nil
}

// IoctlRanges sorts ioctl values numerically and collapses consecutive runs
// into `lo-hi` ranges. Values that are not numbers are kept, sorted after the
// numbers.
func IoctlRanges(values []string) []string {
	var (
		nums  []uint64
		other []string
	)

	for _, v := range values {
		n, err := parseIoctl(v)
		if err != nil {
			other = append(other, v)
			continue
		}

		nums = append(nums, n)
	}

	slices.Sort(nums)
	nums = slices.Compact(nums)

	out := make([]string, 0, len(nums)+len(other))
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}

		if j == i {
			out = append(out, "0x"+strconv.FormatUint(nums[i], 16))
		} else {
			out = append(out, "0x"+strconv.FormatUint(nums[i], 16)+"-0x"+strconv.FormatUint(nums[j], 16))
		}

		i = j + 1
	}

	slices.Sort(other)

	return append(out, other...)
}
