package solanaswapgo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	ag_binary "github.com/gagliardetto/binary"
	jsoniter "github.com/json-iterator/go"
)

const (
	txErrorInstructionError = 8
	instructionErrorCustom  = 25
)

// TransactionError is a failed transaction's status. Only instruction errors
// carrying a custom program code are decoded structurally; everything else
// keeps its raw description.
type TransactionError struct {
	InstructionError bool   `json:"instructionError"`
	InstructionIndex uint8  `json:"instructionIndex"`
	Custom           bool   `json:"custom"`
	Code             uint32 `json:"code"`
	Raw              string `json:"raw"`
}

func (e *TransactionError) Error() string {
	if e.Custom {
		return fmt.Sprintf("instruction %d failed: custom program error %d", e.InstructionIndex, e.Code)
	}
	return e.Raw
}

// CustomCode returns the program-specific error code, if there is one.
func (e *TransactionError) CustomCode() (uint32, bool) {
	if e == nil || !e.Custom {
		return 0, false
	}
	return e.Code, true
}

// TransactionErrorFromBincode decodes the bincode-serialized error carried by geyser updates.
func TransactionErrorFromBincode(data []byte) (*TransactionError, error) {
	dec := ag_binary.NewBinDecoder(data)
	tag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("read error tag: %w", err)
	}
	if tag != txErrorInstructionError {
		return &TransactionError{Raw: fmt.Sprintf("transaction error %d", tag)}, nil
	}

	out := &TransactionError{InstructionError: true}
	if out.InstructionIndex, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("read instruction index: %w", err)
	}
	variant, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("read instruction error variant: %w", err)
	}
	if variant != instructionErrorCustom {
		out.Raw = fmt.Sprintf("instruction %d failed: instruction error %d", out.InstructionIndex, variant)
		return out, nil
	}
	if out.Code, err = dec.ReadUint32(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("read custom code: %w", err)
	}
	out.Custom = true
	out.Raw = out.Error()
	return out, nil
}

// TransactionErrorFromRPC decodes the JSON status error returned by getTransaction,
// e.g. {"InstructionError":[2,{"Custom":6002}]}.
func TransactionErrorFromRPC(v interface{}) (*TransactionError, error) {
	if v == nil {
		return nil, nil
	}
	rawJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
	if err != nil {
		return nil, err
	}
	out := &TransactionError{Raw: rawJSON}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return out, nil
	}
	pair, ok := obj["InstructionError"].([]interface{})
	if !ok || len(pair) != 2 {
		return out, nil
	}
	idx, ok := jsonUint(pair[0])
	if !ok {
		return nil, fmt.Errorf("invalid instruction index in %s", rawJSON)
	}
	out.InstructionError = true
	out.InstructionIndex = uint8(idx)

	detail, ok := pair[1].(map[string]interface{})
	if !ok {
		return out, nil
	}
	if code, ok := jsonUint(detail["Custom"]); ok {
		out.Custom = true
		out.Code = uint32(code)
	}
	return out, nil
}

func jsonUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		u, err := n.Int64()
		if err != nil || u < 0 {
			return 0, false
		}
		return uint64(u), true
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	}
	return 0, false
}
