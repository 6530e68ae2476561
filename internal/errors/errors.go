package errors

import "fmt"

type FlowBotErrorType int

const (
	UnknownError FlowBotErrorType = iota
	NoWalletError
	NoBackendError
	InvalidNWCUriError
	AmountMismatchError
	GetBalanceError
	ProvisionError
	ResolveAddressError
)

func New(code FlowBotErrorType, err error) FlowBotError {
	return FlowBotError{Err: err, Message: err.Error(), Code: code}
}

type FlowBotError struct {
	Message string `json:"message"`
	Err     error
	Code    FlowBotErrorType `json:"code"`
}

func (e FlowBotError) Error() string {
	return e.Message
}

func (e FlowBotError) Unwrap() error {
	return e.Err
}

var (
	ErrNoWallet = FlowBotError{Code: NoWalletError, Message: "no wallet for user", Err: fmt.Errorf("no wallet for user")}
)
