package phyboot

type errGeneric uint8

// Generic errors common to PHY bring-up.
const (
	_                errGeneric = iota // non-initialized err
	ErrPinFault                        // pin fault
	ErrPhyNotFound                     // phy not found
	ErrInvalidAddr                     // invalid address
	ErrInvalidConfig                   // invalid configuration
	ErrClockStage                      // clock stage failed
)

func (err errGeneric) Error() string {
	return err.String()
}

func (err errGeneric) String() string {
	switch err {
	case ErrPinFault:
		return "pin fault"
	case ErrPhyNotFound:
		return "phy not found"
	case ErrInvalidAddr:
		return "invalid address"
	case ErrInvalidConfig:
		return "invalid configuration"
	case ErrClockStage:
		return "clock stage failed"
	}
	return "errGeneric(?)"
}
