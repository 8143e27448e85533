package cert

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysToExpiration(t *testing.T) {
	today := date(2026, time.March, 10)

	cases := []struct {
		name       string
		expiration time.Time
		want       int
	}{
		{"vencida ontem", date(2026, time.March, 9), -1},
		{"vence hoje", date(2026, time.March, 10), 0},
		{"vence amanhã", date(2026, time.March, 11), 1},
		{"virada de mês", date(2026, time.April, 9), 30},
		{"horário não interfere", time.Date(2026, time.March, 25, 23, 59, 0, 0, time.UTC), 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysToExpiration(tc.expiration, today); got != tc.want {
				t.Fatalf("esperava %d dias, obteve %d", tc.want, got)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{-30, StatusExpired},
		{-1, StatusExpired},
		{0, StatusExpiringSoon},
		{1, StatusExpiringSoon},
		{15, StatusExpiringSoon},
		{16, StatusCurrent},
		{364, StatusCurrent},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.days); got != tc.want {
			t.Fatalf("dias=%d: esperava %s, obteve %s", tc.days, tc.want, got)
		}
	}
}

func TestDerivedStatusFollowsTheDate(t *testing.T) {
	today := date(2026, time.June, 1)

	expired := Certification{Status: StatusCurrent, ExpirationDate: date(2026, time.May, 31)}
	if got := expired.DerivedStatus(today); got != StatusExpired {
		t.Fatalf("vencida ontem deveria ser expired, obteve %s", got)
	}

	soon := Certification{Status: StatusCurrent, ExpirationDate: date(2026, time.June, 16)}
	if got := soon.DerivedStatus(today); got != StatusExpiringSoon {
		t.Fatalf("15 dias deveria ser expiring_soon, obteve %s", got)
	}

	current := Certification{Status: StatusExpiringSoon, ExpirationDate: date(2026, time.June, 17)}
	if got := current.DerivedStatus(today); got != StatusCurrent {
		t.Fatalf("16 dias deveria ser current, obteve %s", got)
	}
}

func TestDerivedStatusPreservesManualRenewalMarker(t *testing.T) {
	today := date(2026, time.June, 1)

	c := Certification{Status: StatusPendingRenewal, ExpirationDate: date(2026, time.June, 10)}
	if got := c.DerivedStatus(today); got != StatusPendingRenewal {
		t.Fatalf("marcador manual deveria sobreviver enquanto vigente, obteve %s", got)
	}

	c.ExpirationDate = date(2026, time.May, 20)
	if got := c.DerivedStatus(today); got != StatusExpired {
		t.Fatalf("prazo vencido encerra o marcador manual, obteve %s", got)
	}
}

func TestFixedClock(t *testing.T) {
	day := date(2026, time.January, 15)
	clock := FixedClock{Date: day}

	c := Certification{ExpirationDate: date(2026, time.March, 1)}
	if got := c.DaysToExpirationAt(clock); got != 45 {
		t.Fatalf("esperava 45 dias, obteve %d", got)
	}
}
