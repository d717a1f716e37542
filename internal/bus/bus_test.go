package bus

import (
	"reflect"
	"testing"
)

func TestLocal_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewLocal(nil)

	var got []string
	b.Subscribe("t", func(_ string, p any) { got = append(got, "a:"+p.(string)) })
	b.Subscribe("t", func(_ string, p any) { got = append(got, "b:"+p.(string)) })
	b.Subscribe("other", func(_ string, _ any) { got = append(got, "other") })

	b.Publish("t", "x")

	want := []string{"a:x", "b:x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLocal_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewLocal(nil)

	calls := 0
	unsub := b.Subscribe("t", func(string, any) { calls++ })
	keep := 0
	b.Subscribe("t", func(string, any) { keep++ })

	unsub()
	unsub()
	b.Publish("t", nil)

	if calls != 0 || keep != 1 {
		t.Fatalf("calls=%d keep=%d want 0,1", calls, keep)
	}
	if n := b.Subscribers("t"); n != 1 {
		t.Fatalf("subscribers=%d want 1", n)
	}
}

func TestLocal_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := NewLocal(nil)

	b.Subscribe("t", func(string, any) { panic("boom") })
	reached := false
	b.Subscribe("t", func(string, any) { reached = true })

	b.Publish("t", nil)
	if !reached {
		t.Fatalf("second handler not called after panic in first")
	}
}

func TestLocal_HandlerMaySubscribeDuringPublish(t *testing.T) {
	b := NewLocal(nil)
	b.Subscribe("t", func(string, any) {
		b.Subscribe("t", func(string, any) {})
	})
	b.Publish("t", nil)
	if n := b.Subscribers("t"); n != 2 {
		t.Fatalf("subscribers=%d want 2", n)
	}
}
