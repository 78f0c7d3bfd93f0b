package amortization

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var start = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sumPrincipal(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.PrincipalComponent)
	}
	return total
}

func TestLevelPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		months    int
		want      string
	}{
		{"twelve percent one year", "120000", "12", 12, "10661.85"},
		{"zero rate is exact split", "1200", "0", 12, "100.00"},
		{"zero rate uneven", "1000", "0", 3, "333.33"},
		{"single month", "5000", "12", 1, "5050.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LevelPayment(dec(tt.principal), dec(tt.rate), tt.months)
			if err != nil {
				t.Fatalf("LevelPayment: %v", err)
			}
			if got.StringFixed(2) != tt.want {
				t.Errorf("LevelPayment = %s, want %s", got.StringFixed(2), tt.want)
			}
		})
	}
}

func TestLevelPaymentRejectsBadInput(t *testing.T) {
	cases := []struct {
		principal, rate string
		months          int
	}{
		{"0", "10", 12},
		{"-5", "10", 12},
		{"1000", "-1", 12},
		{"1000", "10", 0},
	}
	for _, c := range cases {
		if _, err := LevelPayment(dec(c.principal), dec(c.rate), c.months); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("LevelPayment(%s, %s, %d) err = %v, want ErrInvalidInput", c.principal, c.rate, c.months, err)
		}
	}
}

func TestBuildScheduleConservesPrincipal(t *testing.T) {
	rows, err := BuildSchedule(dec("120000"), dec("12"), 12, start)
	if err != nil {
		t.Fatalf("BuildSchedule: %v", err)
	}
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if got := sumPrincipal(rows); !got.Equal(dec("120000")) {
		t.Errorf("principal components sum to %s, want 120000", got)
	}
	if !rows[0].InterestComponent.Equal(dec("1200")) {
		t.Errorf("first interest = %s, want 1200", rows[0].InterestComponent)
	}
	if !rows[11].RunningBalance.IsZero() {
		t.Errorf("final running balance = %s, want 0", rows[11].RunningBalance)
	}
	for i, r := range rows {
		if r.EMINumber != i+1 {
			t.Errorf("row %d numbered %d", i, r.EMINumber)
		}
		if !r.TotalAmount.Equal(r.PrincipalComponent.Add(r.InterestComponent)) {
			t.Errorf("row %d total %s != principal + interest", i, r.TotalAmount)
		}
	}
	// Jan 31 start: due dates clamp to month end instead of drifting.
	if got := rows[0].DueDate; !got.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first due date = %s", got)
	}
	if got := rows[2].DueDate; !got.Equal(time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("third due date = %s", got)
	}
}

func TestBuildScheduleVariousInputs(t *testing.T) {
	cases := []struct {
		principal, rate string
		months          int
	}{
		{"100000", "7", 36},
		{"2500000", "8.65", 240},
		{"999.99", "0", 7},
		{"50000", "10.5", 60},
		{"1", "24", 12},
	}
	for _, c := range cases {
		rows, err := BuildSchedule(dec(c.principal), dec(c.rate), c.months, start)
		if err != nil {
			t.Fatalf("BuildSchedule(%v): %v", c, err)
		}
		if len(rows) > c.months {
			t.Errorf("%v: %d rows exceeds tenure", c, len(rows))
		}
		if got := sumPrincipal(rows); !got.Equal(dec(c.principal)) {
			t.Errorf("%v: principal sum %s", c, got)
		}
		for _, r := range rows {
			if r.PrincipalComponent.IsNegative() || r.RunningBalance.IsNegative() {
				t.Errorf("%v: negative component in row %d", c, r.EMINumber)
			}
		}
	}
}

func TestRowsTotalThePayment(t *testing.T) {
	cases := []struct {
		principal, rate string
		months          int
	}{
		{"120000", "12", 12},
		{"100000", "7", 36},
		{"2500000", "8.65", 240},
		{"999.99", "0", 7},
		{"345678.90", "9.25", 84},
	}
	for _, c := range cases {
		emi, err := LevelPayment(dec(c.principal), dec(c.rate), c.months)
		if err != nil {
			t.Fatal(err)
		}
		payment := emi.Round(2)
		rows, err := BuildSchedule(dec(c.principal), dec(c.rate), c.months, start)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rows[:len(rows)-1] {
			if !r.TotalAmount.Equal(payment) {
				t.Errorf("%v: row %d total %s, want %s", c, r.EMINumber, r.TotalAmount, payment)
			}
		}
		if got := sumPrincipal(rows); !got.Equal(dec(c.principal)) {
			t.Errorf("%v: principal sum %s", c, got)
		}
	}

	// interest is rounded per row and principal takes the rest of the payment
	rows, _ := BuildSchedule(dec("120000"), dec("12"), 12, start)
	if !rows[1].PrincipalComponent.Equal(dec("9556.47")) || !rows[1].InterestComponent.Equal(dec("1105.38")) {
		t.Errorf("row 2 = %s + %s", rows[1].PrincipalComponent, rows[1].InterestComponent)
	}
	if !rows[11].TotalAmount.Equal(dec("10661.91")) {
		t.Errorf("last row total %s, want 10661.91", rows[11].TotalAmount)
	}
}

func TestBuildScheduleIsDeterministic(t *testing.T) {
	a, _ := BuildSchedule(dec("345678.90"), dec("9.25"), 84, start)
	b, _ := BuildSchedule(dec("345678.90"), dec("9.25"), 84, start)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different schedules")
	}
}

func TestReduceTenureKeepsPayment(t *testing.T) {
	payment := dec("10661.85")
	rows, err := ReduceTenure(dec("100000"), dec("12"), payment, start, 1)
	if err != nil {
		t.Fatalf("ReduceTenure: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	if got := sumPrincipal(rows); !got.Equal(dec("100000")) {
		t.Errorf("principal sum %s, want 100000", got)
	}
	for _, r := range rows[:len(rows)-1] {
		if !r.TotalAmount.Equal(payment) {
			t.Errorf("row %d total %s, want %s", r.EMINumber, r.TotalAmount, payment)
		}
	}
	last := rows[len(rows)-1]
	if !last.TotalAmount.LessThan(payment) {
		t.Errorf("last row %s should be smaller than the payment", last.TotalAmount)
	}
	if !last.RunningBalance.IsZero() {
		t.Errorf("final balance %s", last.RunningBalance)
	}
}

func TestReduceTenureNumbering(t *testing.T) {
	rows, err := ReduceTenure(dec("40000"), dec("12"), dec("10661.85"), start, 5)
	if err != nil {
		t.Fatalf("ReduceTenure: %v", err)
	}
	for i, r := range rows {
		if r.EMINumber != 5+i {
			t.Errorf("row %d numbered %d", i, r.EMINumber)
		}
		if !r.DueDate.Equal(start.AddDate(0, 0, 0)) && r.DueDate.Before(start) {
			t.Errorf("due date %s before start", r.DueDate)
		}
	}
	if !rows[0].DueDate.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("row 5 due %s, want 2024-06-30", rows[0].DueDate)
	}
}

func TestReduceTenureRejectsNonConvergentPayment(t *testing.T) {
	// 1% of 100000 is 1000 interest; paying exactly that never reduces the balance.
	_, err := ReduceTenure(dec("100000"), dec("12"), dec("1000"), start, 1)
	if !errors.Is(err, ErrNonConvergent) {
		t.Fatalf("err = %v, want ErrNonConvergent", err)
	}
	// Barely above interest: would need far more than MaxRows.
	_, err = ReduceTenure(dec("100000"), dec("12"), dec("1000.01"), start, 1)
	if !errors.Is(err, ErrNonConvergent) {
		t.Fatalf("err = %v, want ErrNonConvergent", err)
	}
}

func TestReduceTenureZeroBalance(t *testing.T) {
	rows, err := ReduceTenure(decimal.Zero, dec("12"), dec("100"), start, 3)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%d err=%v, want empty schedule", len(rows), err)
	}
}

func TestReduceEMIKeepsCount(t *testing.T) {
	emi, rows, err := ReduceEMI(dec("100000"), dec("12"), 12, start, 1)
	if err != nil {
		t.Fatalf("ReduceEMI: %v", err)
	}
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if emi.StringFixed(2) != "8884.88" {
		t.Errorf("emi = %s, want 8884.88", emi.StringFixed(2))
	}
	if got := sumPrincipal(rows); !got.Equal(dec("100000")) {
		t.Errorf("principal sum %s", got)
	}
}
