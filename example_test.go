package weft_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/coroutine"
	"github.com/aretw0/weft/pkg/domain"
)

// ExampleInterpreter shows a coroutine that waits on two effects and joins their
// values, resolved over two passes.
func ExampleInterpreter() {
	greet := &coroutine.Definition{
		Name: "greet",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			switch c.Prev() {
			case 0:
				// Wait on both effects at once.
				return c.Yield(1, c.Arg(0), c.Arg(1)), nil
			case 1:
				parts := c.Sent().([]any)
				return c.Return(fmt.Sprintf("%v, %v!", parts[0], parts[1]))
			}
			return c.Stop()
		},
	}

	salutation := domain.NewEffect("lookup", "salutation")
	name := domain.NewEffect("lookup", "name")

	interp := weft.New()
	h := interp.Subscribe(domain.NewAsync(greet, salutation, name))
	ctx := context.Background()

	table := domain.EffectTable{}.Resolve(salutation, "Hello")
	ev, err := interp.Evaluate(ctx, h, table)
	if err != nil {
		log.Fatal(err)
	}
	var waiting []string
	for _, e := range ev.Unresolved {
		waiting = append(waiting, e.Payload.(string))
	}
	fmt.Println(ev.Outcome.Status, strings.Join(waiting, ","))

	ev, err = interp.Evaluate(ctx, h, table.Resolve(name, "weft"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(ev.Outcome.Status, ev.Outcome.Value)

	// Output:
	// pending name
	// success Hello, weft!
}
