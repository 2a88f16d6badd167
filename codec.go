package openiap

import "github.com/openiap/openiap-go/internal/native"

// Decoders copy a response out of native memory. success=false is turned
// into a RequestFailedError before the payload is looked at.

func failed(op string, msg *byte) error {
	return &RequestFailedError{Op: op, Message: native.GoString(msg)}
}

func decodeStatus(op string) func(*native.Block) (struct{}, error) {
	return func(b *native.Block) (struct{}, error) {
		r := native.View[native.StatusResponse](b)
		if !r.Success {
			return struct{}{}, failed(op, r.Error)
		}
		return struct{}{}, nil
	}
}

func decodePlain(op string) func(*native.Block) (struct{}, error) {
	return func(b *native.Block) (struct{}, error) {
		r := native.View[native.PlainResponse](b)
		if !r.Success {
			return struct{}{}, failed(op, r.Error)
		}
		return struct{}{}, nil
	}
}

func decodeResult(op string) func(*native.Block) (string, error) {
	return func(b *native.Block) (string, error) {
		r := native.View[native.ResultResponse](b)
		if !r.Success {
			return "", failed(op, r.Error)
		}
		return native.GoString(r.Result), nil
	}
}

func decodeCount(op string) func(*native.Block) (int, error) {
	return func(b *native.Block) (int, error) {
		r := native.View[native.CountResponse](b)
		if !r.Success {
			return 0, failed(op, r.Error)
		}
		return int(r.Result), nil
	}
}

func decodeDistinct(op string) func(*native.Block) ([]string, error) {
	return func(b *native.Block) ([]string, error) {
		r := native.View[native.DistinctResponse](b)
		if !r.Success {
			return nil, failed(op, r.Error)
		}
		out, err := native.Strings(r.Results, r.ResultsLen)
		if err != nil {
			return nil, nativeFailure(op, err)
		}
		return out, nil
	}
}

func decodeWorkitem(op string) func(*native.Block) (*Workitem, error) {
	return func(b *native.Block) (*Workitem, error) {
		r := native.View[native.WorkitemResponse](b)
		if !r.Success {
			return nil, failed(op, r.Error)
		}
		if r.Workitem == nil {
			return nil, nil
		}
		w, err := workitemFromNative(r.Workitem)
		if err != nil {
			return nil, nativeFailure(op, err)
		}
		return w, nil
	}
}

func decodeUser(p *native.User) (*User, error) {
	roles, err := native.Strings(p.Roles, p.RolesLen)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:       native.GoString(p.ID),
		Name:     native.GoString(p.Name),
		Username: native.GoString(p.Username),
		Email:    native.GoString(p.Email),
		Roles:    roles,
	}, nil
}

func cbool(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}
