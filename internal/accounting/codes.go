package accounting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var typeBands = map[AccountType]int{
	AccountTypeAsset:     1000,
	AccountTypeLiability: 2000,
	AccountTypeEquity:    3000,
	AccountTypeRevenue:   4000,
	AccountTypeExpense:   5000,
}

// Band returns the first code of the type's numeric range.
func Band(t AccountType) int {
	if b, ok := typeBands[t]; ok {
		return b
	}
	return 1000
}

// NextAccountCode picks the code for a new account given the codes already
// used by accounts of the same type. Expense accounts tied to a department
// use EXP-<dept>. Otherwise the first unused number from the type band is
// returned, filling gaps before extending the range.
func NextAccountCode(t AccountType, departmentCode string, existing []string) string {
	if t == AccountTypeExpense && departmentCode != "" {
		return fmt.Sprintf("EXP-%s", strings.ToUpper(departmentCode))
	}
	band := Band(t)
	var used []int
	for _, code := range existing {
		n, err := strconv.Atoi(code)
		if err != nil || n < band {
			continue
		}
		used = append(used, n)
	}
	sort.Ints(used)
	next := band
	for _, n := range used {
		if n > next {
			break
		}
		if n == next {
			next++
		}
	}
	return strconv.Itoa(next)
}
