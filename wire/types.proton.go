package wire

import (
	"reflect"
	"unsafe"

	"github.com/outofforest/proton"
	"github.com/outofforest/proton/helpers"
	"github.com/pkg/errors"
)

const (
	id0 uint64 = iota + 1
	id1
	id2
	id3
	id4
	id5
	id6
	id7
	id8
	id9
	id10
	id11
	id12
)

var _ proton.Marshaller = Marshaller{}

// NewMarshaller creates marshaller.
func NewMarshaller() Marshaller {
	return Marshaller{}
}

// Marshaller marshals and unmarshals messages.
type Marshaller struct {
}

// Messages returns list of the message types supported by marshaller.
func (m Marshaller) Messages() []any {
	return []any {
		Hello{},
		Goodbye{},
		RegisterSlave{},
		RegisterSlaveAck{},
		AllowConnect{},
		AllowConnectAck{},
		CancelConnect{},
		CancelConnectAck{},
		Connect{},
		ConnectAck{},
		EndpointMessage{},
		EndpointClosed{},
		WithdrawConnect{},
	}
}

// ID returns ID of message type.
func (m Marshaller) ID(msg any) (uint64, error) {
	switch msg.(type) {
	case *Hello:
		return id0, nil
	case *Goodbye:
		return id1, nil
	case *RegisterSlave:
		return id2, nil
	case *RegisterSlaveAck:
		return id3, nil
	case *AllowConnect:
		return id4, nil
	case *AllowConnectAck:
		return id5, nil
	case *CancelConnect:
		return id6, nil
	case *CancelConnectAck:
		return id7, nil
	case *Connect:
		return id8, nil
	case *ConnectAck:
		return id9, nil
	case *EndpointMessage:
		return id10, nil
	case *EndpointClosed:
		return id11, nil
	case *WithdrawConnect:
		return id12, nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Size computes the size of marshalled message.
func (m Marshaller) Size(msg any) (uint64, error) {
	switch msg2 := msg.(type) {
	case *Hello:
		return size0(msg2), nil
	case *Goodbye:
		return size1(msg2), nil
	case *RegisterSlave:
		return size2(msg2), nil
	case *RegisterSlaveAck:
		return size3(msg2), nil
	case *AllowConnect:
		return size4(msg2), nil
	case *AllowConnectAck:
		return size5(msg2), nil
	case *CancelConnect:
		return size6(msg2), nil
	case *CancelConnectAck:
		return size7(msg2), nil
	case *Connect:
		return size8(msg2), nil
	case *ConnectAck:
		return size9(msg2), nil
	case *EndpointMessage:
		return size10(msg2), nil
	case *EndpointClosed:
		return size11(msg2), nil
	case *WithdrawConnect:
		return size12(msg2), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Marshal marshals message.
func (m Marshaller) Marshal(msg any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMarshal(&retErr)

	switch msg2 := msg.(type) {
	case *Hello:
		return id0, marshal0(msg2, buf), nil
	case *Goodbye:
		return id1, marshal1(msg2, buf), nil
	case *RegisterSlave:
		return id2, marshal2(msg2, buf), nil
	case *RegisterSlaveAck:
		return id3, marshal3(msg2, buf), nil
	case *AllowConnect:
		return id4, marshal4(msg2, buf), nil
	case *AllowConnectAck:
		return id5, marshal5(msg2, buf), nil
	case *CancelConnect:
		return id6, marshal6(msg2, buf), nil
	case *CancelConnectAck:
		return id7, marshal7(msg2, buf), nil
	case *Connect:
		return id8, marshal8(msg2, buf), nil
	case *ConnectAck:
		return id9, marshal9(msg2, buf), nil
	case *EndpointMessage:
		return id10, marshal10(msg2, buf), nil
	case *EndpointClosed:
		return id11, marshal11(msg2, buf), nil
	case *WithdrawConnect:
		return id12, marshal12(msg2, buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Unmarshal unmarshals message.
func (m Marshaller) Unmarshal(id uint64, buf []byte) (retMsg any, retSize uint64, retErr error) {
	defer helpers.RecoverUnmarshal(&retErr)

	switch id {
	case id0:
		msg := &Hello{}
		return msg, unmarshal0(msg, buf), nil
	case id1:
		msg := &Goodbye{}
		return msg, unmarshal1(msg, buf), nil
	case id2:
		msg := &RegisterSlave{}
		return msg, unmarshal2(msg, buf), nil
	case id3:
		msg := &RegisterSlaveAck{}
		return msg, unmarshal3(msg, buf), nil
	case id4:
		msg := &AllowConnect{}
		return msg, unmarshal4(msg, buf), nil
	case id5:
		msg := &AllowConnectAck{}
		return msg, unmarshal5(msg, buf), nil
	case id6:
		msg := &CancelConnect{}
		return msg, unmarshal6(msg, buf), nil
	case id7:
		msg := &CancelConnectAck{}
		return msg, unmarshal7(msg, buf), nil
	case id8:
		msg := &Connect{}
		return msg, unmarshal8(msg, buf), nil
	case id9:
		msg := &ConnectAck{}
		return msg, unmarshal9(msg, buf), nil
	case id10:
		msg := &EndpointMessage{}
		return msg, unmarshal10(msg, buf), nil
	case id11:
		msg := &EndpointClosed{}
		return msg, unmarshal11(msg, buf), nil
	case id12:
		msg := &WithdrawConnect{}
		return msg, unmarshal12(msg, buf), nil
	default:
		return nil, 0, errors.Errorf("unknown ID %d", id)
	}
}

// MakePatch creates a patch.
func (m Marshaller) MakePatch(msgDst, msgSrc any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMakePatch(&retErr)

	switch msg2 := msgDst.(type) {
	case *Hello:
		return id0, makePatch0(msg2, msgSrc.(*Hello), buf), nil
	case *Goodbye:
		return id1, makePatch1(msg2, msgSrc.(*Goodbye), buf), nil
	case *RegisterSlave:
		return id2, makePatch2(msg2, msgSrc.(*RegisterSlave), buf), nil
	case *RegisterSlaveAck:
		return id3, makePatch3(msg2, msgSrc.(*RegisterSlaveAck), buf), nil
	case *AllowConnect:
		return id4, makePatch4(msg2, msgSrc.(*AllowConnect), buf), nil
	case *AllowConnectAck:
		return id5, makePatch5(msg2, msgSrc.(*AllowConnectAck), buf), nil
	case *CancelConnect:
		return id6, makePatch6(msg2, msgSrc.(*CancelConnect), buf), nil
	case *CancelConnectAck:
		return id7, makePatch7(msg2, msgSrc.(*CancelConnectAck), buf), nil
	case *Connect:
		return id8, makePatch8(msg2, msgSrc.(*Connect), buf), nil
	case *ConnectAck:
		return id9, makePatch9(msg2, msgSrc.(*ConnectAck), buf), nil
	case *EndpointMessage:
		return id10, makePatch10(msg2, msgSrc.(*EndpointMessage), buf), nil
	case *EndpointClosed:
		return id11, makePatch11(msg2, msgSrc.(*EndpointClosed), buf), nil
	case *WithdrawConnect:
		return id12, makePatch12(msg2, msgSrc.(*WithdrawConnect), buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msgDst)
	}
}

// ApplyPatch applies patch.
func (m Marshaller) ApplyPatch(msg any, buf []byte) (retSize uint64, retErr error) {
	defer helpers.RecoverApplyPatch(&retErr)

	switch msg2 := msg.(type) {
	case *Hello:
		return applyPatch0(msg2, buf), nil
	case *Goodbye:
		return applyPatch1(msg2, buf), nil
	case *RegisterSlave:
		return applyPatch2(msg2, buf), nil
	case *RegisterSlaveAck:
		return applyPatch3(msg2, buf), nil
	case *AllowConnect:
		return applyPatch4(msg2, buf), nil
	case *AllowConnectAck:
		return applyPatch5(msg2, buf), nil
	case *CancelConnect:
		return applyPatch6(msg2, buf), nil
	case *CancelConnectAck:
		return applyPatch7(msg2, buf), nil
	case *Connect:
		return applyPatch8(msg2, buf), nil
	case *ConnectAck:
		return applyPatch9(msg2, buf), nil
	case *EndpointMessage:
		return applyPatch10(msg2, buf), nil
	case *EndpointClosed:
		return applyPatch11(msg2, buf), nil
	case *WithdrawConnect:
		return applyPatch12(msg2, buf), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

func size0(m *Hello) uint64 {
	var n uint64 = 16
	return n
}

func marshal0(m *Hello, b []byte) uint64 {
	var o uint64
	{
		// Token

		copy(b[o:o+16], unsafe.Slice(&m.Token[0], 16))
		o += 16
	}

	return o
}

func unmarshal0(m *Hello, b []byte) uint64 {
	var o uint64
	{
		// Token

		copy(unsafe.Slice(&m.Token[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func makePatch0(m, mSrc *Hello, b []byte) uint64 {
	var o uint64 = 1
	{
		// Token

		if reflect.DeepEqual(m.Token, mSrc.Token) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			copy(b[o:o+16], unsafe.Slice(&m.Token[0], 16))
			o += 16
		}
	}

	return o
}

func applyPatch0(m *Hello, b []byte) uint64 {
	var o uint64 = 1
	{
		// Token

		if b[0]&0x01 != 0 {
			copy(unsafe.Slice(&m.Token[0], 16), b[o:o+16])
			o += 16
		}
	}

	return o
}

func size1(m *Goodbye) uint64 {
	var n uint64 = 1
	{
		// Reason

		{
			l := uint64(len(m.Reason))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal1(m *Goodbye, b []byte) uint64 {
	var o uint64
	{
		// Reason

		{
			l := uint64(len(m.Reason))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Reason)
			o += l
		}
	}

	return o
}

func unmarshal1(m *Goodbye, b []byte) uint64 {
	var o uint64
	{
		// Reason

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Reason = string(b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch1(m, mSrc *Goodbye, b []byte) uint64 {
	var o uint64 = 1
	{
		// Reason

		if reflect.DeepEqual(m.Reason, mSrc.Reason) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			{
				l := uint64(len(m.Reason))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Reason)
				o += l
			}
		}
	}

	return o
}

func applyPatch1(m *Goodbye, b []byte) uint64 {
	var o uint64 = 1
	{
		// Reason

		if b[0]&0x01 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Reason = string(b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size2(m *RegisterSlave) uint64 {
	var n uint64 = 1
	{
		// Address

		{
			l := uint64(len(m.Address))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal2(m *RegisterSlave, b []byte) uint64 {
	var o uint64
	{
		// Address

		{
			l := uint64(len(m.Address))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Address)
			o += l
		}
	}

	return o
}

func unmarshal2(m *RegisterSlave, b []byte) uint64 {
	var o uint64
	{
		// Address

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Address = string(b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch2(m, mSrc *RegisterSlave, b []byte) uint64 {
	var o uint64 = 1
	{
		// Address

		if reflect.DeepEqual(m.Address, mSrc.Address) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			{
				l := uint64(len(m.Address))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Address)
				o += l
			}
		}
	}

	return o
}

func applyPatch2(m *RegisterSlave, b []byte) uint64 {
	var o uint64 = 1
	{
		// Address

		if b[0]&0x01 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Address = string(b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size3(m *RegisterSlaveAck) uint64 {
	var n uint64 = 1
	{
		// ProcessID

		helpers.UInt64Size(m.ProcessID, &n)
	}
	return n
}

func marshal3(m *RegisterSlaveAck, b []byte) uint64 {
	var o uint64
	{
		// ProcessID

		helpers.UInt64Marshal(m.ProcessID, b, &o)
	}

	return o
}

func unmarshal3(m *RegisterSlaveAck, b []byte) uint64 {
	var o uint64
	{
		// ProcessID

		helpers.UInt64Unmarshal(&m.ProcessID, b, &o)
	}

	return o
}

func makePatch3(m, mSrc *RegisterSlaveAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// ProcessID

		if reflect.DeepEqual(m.ProcessID, mSrc.ProcessID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.ProcessID, b, &o)
		}
	}

	return o
}

func applyPatch3(m *RegisterSlaveAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// ProcessID

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.ProcessID, b, &o)
		}
	}

	return o
}

func size4(m *AllowConnect) uint64 {
	var n uint64 = 16
	return n
}

func marshal4(m *AllowConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
		o += 16
	}

	return o
}

func unmarshal4(m *AllowConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func makePatch4(m, mSrc *AllowConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if reflect.DeepEqual(m.ConnectionID, mSrc.ConnectionID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
			o += 16
		}
	}

	return o
}

func applyPatch4(m *AllowConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if b[0]&0x01 != 0 {
			copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
			o += 16
		}
	}

	return o
}

func size5(m *AllowConnectAck) uint64 {
	var n uint64 = 1
	return n
}

func marshal5(m *AllowConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if m.Success {
			b[0] |= 0x01
		} else {
			b[0] &= 0xFE
		}
	}

	return o
}

func unmarshal5(m *AllowConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		m.Success = b[0]&0x01 != 0
	}

	return o
}

func makePatch5(m, mSrc *AllowConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if m.Success == mSrc.Success {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
		}
	}

	return o
}

func applyPatch5(m *AllowConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if b[0]&0x01 != 0 {
			m.Success = !m.Success
		}
	}

	return o
}

func size6(m *CancelConnect) uint64 {
	var n uint64 = 16
	return n
}

func marshal6(m *CancelConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
		o += 16
	}

	return o
}

func unmarshal6(m *CancelConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func makePatch6(m, mSrc *CancelConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if reflect.DeepEqual(m.ConnectionID, mSrc.ConnectionID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
			o += 16
		}
	}

	return o
}

func applyPatch6(m *CancelConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if b[0]&0x01 != 0 {
			copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
			o += 16
		}
	}

	return o
}

func size7(m *CancelConnectAck) uint64 {
	var n uint64 = 1
	return n
}

func marshal7(m *CancelConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if m.Success {
			b[0] |= 0x01
		} else {
			b[0] &= 0xFE
		}
	}

	return o
}

func unmarshal7(m *CancelConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		m.Success = b[0]&0x01 != 0
	}

	return o
}

func makePatch7(m, mSrc *CancelConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if m.Success == mSrc.Success {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
		}
	}

	return o
}

func applyPatch7(m *CancelConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if b[0]&0x01 != 0 {
			m.Success = !m.Success
		}
	}

	return o
}

func size8(m *Connect) uint64 {
	var n uint64 = 16
	return n
}

func marshal8(m *Connect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
		o += 16
	}

	return o
}

func unmarshal8(m *Connect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func makePatch8(m, mSrc *Connect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if reflect.DeepEqual(m.ConnectionID, mSrc.ConnectionID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
			o += 16
		}
	}

	return o
}

func applyPatch8(m *Connect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if b[0]&0x01 != 0 {
			copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
			o += 16
		}
	}

	return o
}

func size9(m *ConnectAck) uint64 {
	var n uint64 = 1
	{
		// Data

		n += size13(&m.Data)
	}
	{
		// Handle

		n += size14(&m.Handle)
	}
	return n
}

func marshal9(m *ConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		if m.Success {
			b[0] |= 0x01
		} else {
			b[0] &= 0xFE
		}
	}
	{
		// Data

		o += marshal13(&m.Data, b[o:])
	}
	{
		// Handle

		o += marshal14(&m.Handle, b[o:])
	}

	return o
}

func unmarshal9(m *ConnectAck, b []byte) uint64 {
	var o uint64 = 1
	{
		// Success

		m.Success = b[0]&0x01 != 0
	}
	{
		// Data

		o += unmarshal13(&m.Data, b[o:])
	}
	{
		// Handle

		o += unmarshal14(&m.Handle, b[o:])
	}

	return o
}

func makePatch9(m, mSrc *ConnectAck, b []byte) uint64 {
	var o uint64 = 2
	{
		// Success

		if m.Success == mSrc.Success {
			b[1] &= 0xFE
		} else {
			b[1] |= 0x01
		}
	}
	{
		// Data

		if reflect.DeepEqual(m.Data, mSrc.Data) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			o += marshal13(&m.Data, b[o:])
		}
	}
	{
		// Handle

		if reflect.DeepEqual(m.Handle, mSrc.Handle) {
			b[0] &= 0xFD
		} else {
			b[0] |= 0x02
			o += marshal14(&m.Handle, b[o:])
		}
	}

	return o
}

func applyPatch9(m *ConnectAck, b []byte) uint64 {
	var o uint64 = 2
	{
		// Success

		if b[1]&0x01 != 0 {
			m.Success = !m.Success
		}
	}
	{
		// Data

		if b[0]&0x01 != 0 {
			o += unmarshal13(&m.Data, b[o:])
		}
	}
	{
		// Handle

		if b[0]&0x02 != 0 {
			o += unmarshal14(&m.Handle, b[o:])
		}
	}

	return o
}

func size10(m *EndpointMessage) uint64 {
	var n uint64 = 3
	{
		// EndpointID

		helpers.UInt64Size(m.EndpointID, &n)
	}
	{
		// Handles

		l := uint64(len(m.Handles))
		helpers.UInt64Size(l, &n)
		for _, sv1 := range m.Handles {
			n += size15(&sv1)
		}
	}
	{
		// Payload

		l := uint64(len(m.Payload))
		helpers.UInt64Size(l, &n)
		n += l
	}
	return n
}

func marshal10(m *EndpointMessage, b []byte) uint64 {
	var o uint64
	{
		// EndpointID

		helpers.UInt64Marshal(m.EndpointID, b, &o)
	}
	{
		// Handles

		helpers.UInt64Marshal(uint64(len(m.Handles)), b, &o)
		for _, sv1 := range m.Handles {
			o += marshal15(&sv1, b[o:])
		}
	}
	{
		// Payload

		l := uint64(len(m.Payload))
		helpers.UInt64Marshal(l, b, &o)
		if l > 0 {
			copy(b[o:o+l], unsafe.Slice(&m.Payload[0], l))
			o += l
		}
	}

	return o
}

func unmarshal10(m *EndpointMessage, b []byte) uint64 {
	var o uint64
	{
		// EndpointID

		helpers.UInt64Unmarshal(&m.EndpointID, b, &o)
	}
	{
		// Handles

		var l uint64
		helpers.UInt64Unmarshal(&l, b, &o)
		if l > 0 {
			m.Handles = make([]Handle, l)
			for i1 := range l {
				o += unmarshal15(&m.Handles[i1], b[o:])
			}
		}
	}
	{
		// Payload

		var l uint64
		helpers.UInt64Unmarshal(&l, b, &o)
		if l > 0 {
			m.Payload = make([]uint8, l)
			copy(m.Payload, b[o:o+l])
			o += l
		}
	}

	return o
}

func makePatch10(m, mSrc *EndpointMessage, b []byte) uint64 {
	var o uint64 = 1
	{
		// EndpointID

		if reflect.DeepEqual(m.EndpointID, mSrc.EndpointID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.EndpointID, b, &o)
		}
	}
	{
		// Handles

		if reflect.DeepEqual(m.Handles, mSrc.Handles) {
			b[0] &= 0xFD
		} else {
			b[0] |= 0x02
			helpers.UInt64Marshal(uint64(len(m.Handles)), b, &o)
			for _, sv1 := range m.Handles {
				o += marshal15(&sv1, b[o:])
			}
		}
	}
	{
		// Payload

		if reflect.DeepEqual(m.Payload, mSrc.Payload) {
			b[0] &= 0xFB
		} else {
			b[0] |= 0x04
			l := uint64(len(m.Payload))
			helpers.UInt64Marshal(l, b, &o)
			if l > 0 {
				copy(b[o:o+l], unsafe.Slice(&m.Payload[0], l))
				o += l
			}
		}
	}

	return o
}

func applyPatch10(m *EndpointMessage, b []byte) uint64 {
	var o uint64 = 1
	{
		// EndpointID

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.EndpointID, b, &o)
		}
	}
	{
		// Handles

		if b[0]&0x02 != 0 {
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Handles = make([]Handle, l)
				for i1 := range l {
					o += unmarshal15(&m.Handles[i1], b[o:])
				}
			}
		}
	}
	{
		// Payload

		if b[0]&0x04 != 0 {
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Payload = make([]uint8, l)
				copy(m.Payload, b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func size11(m *EndpointClosed) uint64 {
	var n uint64 = 1
	{
		// EndpointID

		helpers.UInt64Size(m.EndpointID, &n)
	}
	return n
}

func marshal11(m *EndpointClosed, b []byte) uint64 {
	var o uint64
	{
		// EndpointID

		helpers.UInt64Marshal(m.EndpointID, b, &o)
	}

	return o
}

func unmarshal11(m *EndpointClosed, b []byte) uint64 {
	var o uint64
	{
		// EndpointID

		helpers.UInt64Unmarshal(&m.EndpointID, b, &o)
	}

	return o
}

func makePatch11(m, mSrc *EndpointClosed, b []byte) uint64 {
	var o uint64 = 1
	{
		// EndpointID

		if reflect.DeepEqual(m.EndpointID, mSrc.EndpointID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.EndpointID, b, &o)
		}
	}

	return o
}

func applyPatch11(m *EndpointClosed, b []byte) uint64 {
	var o uint64 = 1
	{
		// EndpointID

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.EndpointID, b, &o)
		}
	}

	return o
}

func size12(m *WithdrawConnect) uint64 {
	var n uint64 = 16
	return n
}

func marshal12(m *WithdrawConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
		o += 16
	}

	return o
}

func unmarshal12(m *WithdrawConnect, b []byte) uint64 {
	var o uint64
	{
		// ConnectionID

		copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func makePatch12(m, mSrc *WithdrawConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if reflect.DeepEqual(m.ConnectionID, mSrc.ConnectionID) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			copy(b[o:o+16], unsafe.Slice(&m.ConnectionID[0], 16))
			o += 16
		}
	}

	return o
}

func applyPatch12(m *WithdrawConnect, b []byte) uint64 {
	var o uint64 = 1
	{
		// ConnectionID

		if b[0]&0x01 != 0 {
			copy(unsafe.Slice(&m.ConnectionID[0], 16), b[o:o+16])
			o += 16
		}
	}

	return o
}

func size13(m *AckSuccessConnectData) uint64 {
	var n uint64 = 2
	{
		// PeerProcessID

		helpers.UInt64Size(m.PeerProcessID, &n)
	}
	return n
}

func marshal13(m *AckSuccessConnectData, b []byte) uint64 {
	var o uint64 = 1
	{
		// PeerProcessID

		helpers.UInt64Marshal(m.PeerProcessID, b, &o)
	}
	{
		// IsFirst

		if m.IsFirst {
			b[0] |= 0x01
		} else {
			b[0] &= 0xFE
		}
	}

	return o
}

func unmarshal13(m *AckSuccessConnectData, b []byte) uint64 {
	var o uint64 = 1
	{
		// PeerProcessID

		helpers.UInt64Unmarshal(&m.PeerProcessID, b, &o)
	}
	{
		// IsFirst

		m.IsFirst = b[0]&0x01 != 0
	}

	return o
}

func size14(m *PipeHandle) uint64 {
	var n uint64 = 17
	{
		// Address

		{
			l := uint64(len(m.Address))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal14(m *PipeHandle, b []byte) uint64 {
	var o uint64
	{
		// Address

		{
			l := uint64(len(m.Address))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Address)
			o += l
		}
	}
	{
		// Token

		copy(b[o:o+16], unsafe.Slice(&m.Token[0], 16))
		o += 16
	}

	return o
}

func unmarshal14(m *PipeHandle, b []byte) uint64 {
	var o uint64
	{
		// Address

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Address = string(b[o:o+l])
				o += l
			}
		}
	}
	{
		// Token

		copy(unsafe.Slice(&m.Token[0], 16), b[o:o+16])
		o += 16
	}

	return o
}

func size15(m *Handle) uint64 {
	var n uint64 = 2
	{
		// Type

		helpers.UInt64Size(m.Type, &n)
	}
	{
		// EndpointID

		helpers.UInt64Size(m.EndpointID, &n)
	}
	return n
}

func marshal15(m *Handle, b []byte) uint64 {
	var o uint64
	{
		// Type

		helpers.UInt64Marshal(m.Type, b, &o)
	}
	{
		// EndpointID

		helpers.UInt64Marshal(m.EndpointID, b, &o)
	}

	return o
}

func unmarshal15(m *Handle, b []byte) uint64 {
	var o uint64
	{
		// Type

		helpers.UInt64Unmarshal(&m.Type, b, &o)
	}
	{
		// EndpointID

		helpers.UInt64Unmarshal(&m.EndpointID, b, &o)
	}

	return o
}
