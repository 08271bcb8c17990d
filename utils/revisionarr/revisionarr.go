// Package revisionarr implements comparison helpers for config revisions
// represented as arrays of uint64, ordered least-significant first.  A
// bucket config revision is (rev, revEpoch) in this form, so an epoch bump
// always outranks any rev value.
package revisionarr

// Compare returns an integer comparing two revisions.  The result will be
// 0 if a == b, -1 if a < b, and +1 if a > b.  A nil argument is treated as
// an all-zero revision.
func Compare(a, b []uint64) int {
	lenA := len(a)
	lenB := len(b)

	// elements beyond the other side's length compare against implicit
	// zeros, any non-zero among them decides immediately
	if lenA > lenB {
		for elIdx := lenB; elIdx < lenA; elIdx++ {
			if a[elIdx] > 0 {
				return 1
			}
		}
	} else if lenB > lenA {
		for elIdx := lenA; elIdx < lenB; elIdx++ {
			if b[elIdx] > 0 {
				return -1
			}
		}
	}

	minLen := lenA
	if lenB < minLen {
		minLen = lenB
	}

	// most significant element is on the right
	for elIdx := minLen - 1; elIdx >= 0; elIdx-- {
		if a[elIdx] > b[elIdx] {
			return 1
		} else if b[elIdx] > a[elIdx] {
			return -1
		}
	}

	return 0
}

// Newer indicates whether revision a is strictly newer than revision b.
func Newer(a, b []uint64) bool {
	return Compare(a, b) > 0
}

// IsZero indicates whether the revision is empty or all zeros.
func IsZero(a []uint64) bool {
	for _, value := range a {
		if value != 0 {
			return false
		}
	}
	return true
}
