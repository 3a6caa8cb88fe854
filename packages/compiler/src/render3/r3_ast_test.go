package render3_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/render3"
)

func TestParseDeferredTime(t *testing.T) {
	cases := []struct {
		value string
		want  int
		ok    bool
	}{
		{"100", 100, true},
		{"100ms", 100, true},
		{"2s", 2000, true},
		{"1.5s", 1500, true},
		{"", 0, false},
		{"ms", 0, false},
		{"-1s", 0, false},
		{"10m", 0, false},
	}
	for _, c := range cases {
		got, ok := render3.ParseDeferredTime(c.value)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseDeferredTime(%q) = %d, %t, want %d, %t", c.value, got, ok, c.want, c.ok)
		}
	}
}

func TestDeferredBlockTriggersAll(t *testing.T) {
	t.Run("should list set triggers in a fixed order", func(t *testing.T) {
		triggers := render3.DeferredBlockTriggers{
			Never:    &render3.NeverDeferredTrigger{},
			Timer:    &render3.TimerDeferredTrigger{Delay: 5},
			Idle:     &render3.IdleDeferredTrigger{},
			Viewport: &render3.ViewportDeferredTrigger{},
		}
		var got []string
		for _, tr := range triggers.All() {
			switch tr.(type) {
			case *render3.IdleDeferredTrigger:
				got = append(got, "idle")
			case *render3.TimerDeferredTrigger:
				got = append(got, "timer")
			case *render3.ViewportDeferredTrigger:
				got = append(got, "viewport")
			case *render3.NeverDeferredTrigger:
				got = append(got, "never")
			default:
				t.Fatalf("unexpected trigger %T", tr)
			}
		}
		if diff := cmp.Diff([]string{"idle", "timer", "viewport", "never"}, got); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should be empty when nothing is set", func(t *testing.T) {
		var triggers render3.DeferredBlockTriggers
		if got := triggers.All(); len(got) != 0 {
			t.Errorf("All() = %v", got)
		}
	})
}

func TestWalk(t *testing.T) {
	t.Run("should visit in pre-order and skip pruned children", func(t *testing.T) {
		inner := &render3.Element{Name: "i"}
		nodes := []render3.Node{
			&render3.Element{
				Name:       "div",
				Attributes: []*render3.TextAttribute{{Name: "a"}},
				Children:   []render3.Node{&render3.Element{Name: "skip", Children: []render3.Node{inner}}, &render3.Text{Value: "t"}},
				References: []*render3.Reference{{Name: "r"}},
			},
			&render3.ForLoopBlock{
				Item:             &render3.Variable{Name: "item"},
				ContextVariables: []*render3.Variable{{Name: "$index"}},
				Empty:            &render3.ForLoopBlockEmpty{Children: []render3.Node{&render3.Text{Value: "none"}}},
			},
		}

		var got []string
		render3.Walk(nodes, func(n render3.Node) bool {
			switch n := n.(type) {
			case *render3.Element:
				got = append(got, "<"+n.Name+">")
				return n.Name != "skip"
			case *render3.TextAttribute:
				got = append(got, "@"+n.Name)
			case *render3.Text:
				got = append(got, n.Value)
			case *render3.Reference:
				got = append(got, "#"+n.Name)
			case *render3.Variable:
				got = append(got, "let "+n.Name)
			case *render3.ForLoopBlock:
				got = append(got, "@for")
			case *render3.ForLoopBlockEmpty:
				got = append(got, "@empty")
			}
			return true
		})
		want := []string{"<div>", "@a", "<skip>", "t", "#r", "@for", "let item", "let $index", "@empty", "none"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("visit order mismatch (-want +got):\n%s", diff)
		}
	})
}
