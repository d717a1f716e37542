package pager

import "testing"

func TestNumPages(t *testing.T) {
	cases := []struct{ count, rows, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
		{7, 1, 7},
		{5, 0, 0},
		{-3, 10, 0},
	}
	for _, tc := range cases {
		if got := NumPages(tc.count, tc.rows); got != tc.want {
			t.Fatalf("NumPages(%d,%d)=%d want %d", tc.count, tc.rows, got, tc.want)
		}
	}
}

func TestStartOffset_NonNegative(t *testing.T) {
	for rows := 1; rows <= 25; rows += 6 {
		for page := 1; page <= 40; page++ {
			got := StartOffset(page, rows)
			if got != (page-1)*rows || got < 0 {
				t.Fatalf("StartOffset(%d,%d)=%d", page, rows, got)
			}
		}
	}
}

func TestRender_LabelsAndSingleActive(t *testing.T) {
	for count := 0; count <= 57; count += 3 {
		for _, rows := range []int{1, 4, 10} {
			n := NumPages(count, rows)
			for current := -1; current <= n+1; current++ {
				anchors := Render(count, rows, current)
				if len(anchors) != n {
					t.Fatalf("count=%d rows=%d: %d anchors want %d", count, rows, len(anchors), n)
				}
				active := 0
				for i, a := range anchors {
					if a.Label != i+1 {
						t.Fatalf("anchor %d label=%d", i, a.Label)
					}
					if a.Class != ClassPageNum {
						t.Fatalf("anchor class=%q", a.Class)
					}
					if a.Active {
						active++
						if a.Label != current {
							t.Fatalf("active label=%d current=%d", a.Label, current)
						}
					}
				}
				wantActive := 0
				if current >= 1 && current <= n {
					wantActive = 1
				}
				if active != wantActive {
					t.Fatalf("count=%d rows=%d current=%d: %d active want %d", count, rows, current, active, wantActive)
				}
			}
		}
	}
}

func TestRender_Idempotent(t *testing.T) {
	a := Render(42, 10, 3)
	b := Render(42, 10, 3)
	if len(a) != len(b) {
		t.Fatalf("lengths differ")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("anchor %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestAnchorList_HTML(t *testing.T) {
	l := NewAnchorList()
	for _, a := range Render(25, 10, 2) {
		l.Append(a)
	}
	got, err := l.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	want := `<a class="page-num">1</a><a class="page-num page-active">2</a><a class="page-num">3</a>`
	if got != want {
		t.Fatalf("html=%s\nwant %s", got, want)
	}

	l.Reset()
	if got, _ := l.HTML(); got != "" {
		t.Fatalf("html after reset=%q", got)
	}
}

func TestAnchorList_ReplaceNeverShowsPartialList(t *testing.T) {
	l := NewAnchorList()
	full := Render(100, 10, 1)
	l.Replace(full)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				l.Replace(Render(100, 10, 2))
				l.Replace(full)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		if n := len(l.Anchors()); n != len(full) {
			close(stop)
			<-done
			t.Fatalf("snapshot had %d anchors want %d", n, len(full))
		}
	}
	close(stop)
	<-done
}

func TestAnchorList_ReplaceCopiesInput(t *testing.T) {
	l := NewAnchorList()
	in := Render(20, 10, 1)
	l.Replace(in)
	in[0].Label = 99
	if got := l.Anchors()[0].Label; got != 1 {
		t.Fatalf("label=%d want 1", got)
	}
}
