package correlate

// DefaultCorrelations returns the stock coupling list for a device family.
// Unknown types get the generic list.
func DefaultCorrelations(deviceType string) []Correlation {
	switch deviceType {
	case "cable_modem":
		return []Correlation{
			{MetricSignalQuality, MetricThroughput, Positive, 0.7},
			{MetricInterfaceUtilization, MetricErrorRate, Exponential, 0.6},
			{MetricTemperature, MetricSignalQuality, Negative, 0.4},
		}
	case "mta":
		return []Correlation{
			{MetricSignalQuality, MetricThroughput, Positive, 0.6},
			{MetricInterfaceUtilization, MetricErrorRate, Exponential, 0.5},
		}
	case "switch":
		return []Correlation{
			{MetricInterfaceUtilization, MetricCPUUsage, Positive, 0.5},
			{MetricInterfaceUtilization, MetricErrorRate, Threshold, 0.6},
			{MetricCPUUsage, MetricTemperature, Positive, 0.3},
		}
	case "router":
		return []Correlation{
			{MetricInterfaceUtilization, MetricCPUUsage, Positive, 0.7},
			{MetricInterfaceUtilization, MetricErrorRate, Exponential, 0.5},
			{MetricCPUUsage, MetricTemperature, Positive, 0.4},
		}
	case "cmts":
		return []Correlation{
			{MetricInterfaceUtilization, MetricCPUUsage, Positive, 0.6},
			{MetricInterfaceUtilization, MetricErrorRate, Logarithmic, 0.4},
			{MetricTemperature, MetricPowerConsumption, Positive, 0.3},
		}
	case "server":
		return []Correlation{
			{MetricCPUUsage, MetricTemperature, Positive, 0.5},
			{MetricCPUUsage, MetricPowerConsumption, Positive, 0.6},
			{MetricInterfaceUtilization, MetricCPUUsage, Positive, 0.4},
		}
	default:
		return []Correlation{
			{MetricInterfaceUtilization, MetricErrorRate, Positive, 0.3},
		}
	}
}
