package report

var commandHelp = map[string]string{
	"ResetInd":            "ABP device (1.1) indicates a reset and its LoRaWAN minor version.",
	"ResetConf":           "Network acknowledges ResetInd with its supported minor version.",
	"LinkCheckReq":        "End-device validates its connectivity with the network.",
	"LinkCheckAns":        "Demodulation margin of the last LinkCheckReq and number of gateways that received it.",
	"LinkADRReq":          "Network asks the device to change data rate, TX power, channel mask and redundancy.",
	"LinkADRAns":          "Device acknowledges LinkADRReq; each bit reports acceptance of one setting.",
	"DutyCycleReq":        "Sets the maximum aggregated transmit duty cycle to 1/2^MaxDCycle.",
	"DutyCycleAns":        "Device acknowledges DutyCycleReq.",
	"RXParamSetupReq":     "Sets the RX2 frequency and data rate and the RX1 data rate offset.",
	"RXParamSetupAns":     "Device acknowledges RXParamSetupReq.",
	"DevStatusReq":        "Network requests the device battery level and demodulation margin.",
	"DevStatusAns":        "Battery 0 is external power, 1..254 is the level, 255 is unknown; margin is the SNR in dB.",
	"NewChannelReq":       "Creates or modifies a radio channel definition.",
	"NewChannelAns":       "Device acknowledges NewChannelReq.",
	"RXTimingSetupReq":    "Sets the delay between the end of the uplink and the RX1 window.",
	"RXTimingSetupAns":    "Device acknowledges RXTimingSetupReq.",
	"TXParamSetupReq":     "Sets the maximum allowed dwell time and EIRP.",
	"TXParamSetupAns":     "Device acknowledges TXParamSetupReq.",
	"DlChannelReq":        "Moves the RX1 downlink frequency of a channel away from the uplink frequency.",
	"DlChannelAns":        "Device acknowledges DlChannelReq.",
	"RekeyInd":            "OTAA device (1.1) confirms security key update.",
	"RekeyConf":           "Network acknowledges RekeyInd.",
	"ADRParamSetupReq":    "Sets ADR_ACK_LIMIT and ADR_ACK_DELAY.",
	"ADRParamSetupAns":    "Device acknowledges ADRParamSetupReq.",
	"DeviceTimeReq":       "Device requests the current network date and time.",
	"DeviceTimeAns":       "GPS epoch seconds and fractional seconds in 1/256 s steps.",
	"ForceRejoinReq":      "Network asks the device to rejoin immediately.",
	"RejoinParamSetupReq": "Sets the periodic rejoin request limits.",
	"RejoinParamSetupAns": "Device acknowledges RejoinParamSetupReq.",
	"PingSlotInfoReq":     "Class B device communicates its ping slot periodicity.",
	"PingSlotInfoAns":     "Network acknowledges PingSlotInfoReq.",
	"PingSlotChannelReq":  "Sets the class B ping slot downlink frequency and data rate.",
	"PingSlotChannelAns":  "Device acknowledges PingSlotChannelReq.",
	"BeaconTimingReq":     "Class B device asks for the next beacon timing (deprecated).",
	"BeaconTimingAns":     "Delay and channel of the next beacon (deprecated).",
	"BeaconFreqReq":       "Sets the class B beacon frequency.",
	"BeaconFreqAns":       "Device acknowledges BeaconFreqReq.",
	"DeviceModeInd":       "Device (1.1) indicates its current operating class.",
	"DeviceModeConf":      "Network acknowledges DeviceModeInd.",
}
