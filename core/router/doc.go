// Package router runs keyed units of work on a fixed pool of sequential
// workers.
//
// Every submission carries a routing key. The key is hashed onto one of the
// router's workers, and each worker runs its queue strictly one item at a
// time in submission order. Work sharing a key is therefore serialized
// without any locking by the caller, while work under different keys runs
// concurrently on other workers.
//
// # Basic Usage
//
//	r, err := router.New(ctx, 64)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	via := router.Submit(r, order.ID, func(ctx context.Context) (int, error) {
//	    return applyEvent(ctx, order)
//	})
//
//	total, err := via.Await(ctx)
//
// Submit never blocks. It returns a [Via], a one-shot bridge that resolves
// once the worker has run the unit of work. Errors returned by the unit of
// work are delivered through the Via like any other result.
//
// # Global Router
//
// Callers that do not want to pass a router around can use [SubmitGlobal].
// The first call lazily creates a detached router sized from the
// environment (see [Config]); [SetGlobal] installs a specific one instead.
//
// # Worker Identity
//
// The context handed to a unit of work carries the index of the worker it
// runs on; read it with [WorkerID].
//
// # Delivery Is Best Effort
//
// A Via whose unit of work is never run never resolves. This happens when
// the router was closed before the work ran, or when an earlier unit of
// work on the same worker panicked and killed it. Always await with a
// context that can end:
//
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	v, err := via.Await(ctx) // err == context.DeadlineExceeded if lost
package router
