package llm

import "context"

type fakeClient struct {
	calls  int
	deltas []string
	text   string
	err    error
	// stream controls whether deltas are delivered through OnTextDelta.
	stream bool
	ctxErr error
}

func (f *fakeClient) Generate(ctx context.Context, req Request) (Result, error) {
	f.calls++
	if f.err != nil {
		return Result{}, f.err
	}
	if f.stream && req.OnTextDelta != nil {
		for _, d := range f.deltas {
			req.OnTextDelta(d)
			if ctx.Err() != nil {
				f.ctxErr = ctx.Err()
				return Result{}, ctx.Err()
			}
		}
	}
	return Result{Text: f.text}, nil
}
