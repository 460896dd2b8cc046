package mm

// Location sources understood by ModemManager's Location interface.
const (
	MMModemLocationSource3gppLacCi    uint32 = 1 << 0
	MMModemLocationSourceGpsUnmanaged uint32 = 1 << 4
)

// GPSModeStandalone starts the engine without network assistance.
const GPSModeStandalone = 1
