package schema

// Canonical property identifiers.
const (
	PropUnknown PropertyID = iota

	// Read-only.
	PropName
	PropObjectURI
	PropObjectID
	PropParent
	PropClass
	PropStatus
	PropHasUnacceptableStatus
	PropIsLocked
	PropOSName
	PropOSType
	PropOSVersion
	PropDegradedAdapters
	PropCurrentIFLProcessingWeight
	PropCurrentCPProcessingWeight
	PropReservedMemory
	PropAutoStart
	PropBootISOImageName
	PropThreadsPerProcessor
	PropNICURIs
	PropHBAURIs
	PropVirtualFunctionURIs
	PropStorageGroupURIs
	PropBootNetworkDevice
	PropBootStorageDevice

	// Create-only.
	PropType

	// Update-only.
	PropBootStorageVolume

	// Anytime.
	PropDescription
	PropShortName
	PropPartitionID
	PropAutogeneratePartitionID
	PropIFLProcessors
	PropCPProcessors
	PropProcessorMode
	PropInitialMemory
	PropMaximumMemory
	PropReserveResources
	PropIFLAbsoluteProcessorCapping
	PropIFLAbsoluteProcessorCappingValue
	PropIFLProcessingWeightCapped
	PropInitialIFLProcessingWeight
	PropMinimumIFLProcessingWeight
	PropMaximumIFLProcessingWeight
	PropCPAbsoluteProcessorCapping
	PropCPAbsoluteProcessorCappingValue
	PropCPProcessingWeightCapped
	PropInitialCPProcessingWeight
	PropBootDevice
	PropBootTimeout
	PropBootFTPHost
	PropBootFTPUsername
	PropBootFTPPassword
	PropBootFTPInsfile
	PropBootRemovableMedia
	PropBootRemovableMediaType
	PropBootConfigurationSelector
	PropBootRecordLBA
	PropBootLoadParameters
	PropBootOSSpecificParameters
	PropBootLogicalUnitNumber
	PropBootWorldWidePortName
	PropAccessGlobalPerformanceData
	PropPermitCrossPartitionCommands
	PropAccessBasicCounterSet
	PropAccessProblemStateCounterSet
	PropAccessCryptoActivityCounterSet
	PropAccessExtendedCounterSet
	PropAccessCoprocessorGroupSet
	PropAccessBasicSampling
	PropAccessDiagnosticSampling
	PropPermitDESKeyImportFunctions
	PropPermitAESKeyImportFunctions
	PropAcceptableStatus
	PropCryptoConfiguration
	PropSSCHostName
	PropSSCIPv4Gateway
	PropSSCDNSServers
	PropSSCMasterUserID
	PropSSCMasterPassword

	// Artificial.
	PropBootNetworkNICName
	PropBootStorageHBAName
)

var table = []Spec{
	{ID: PropName, Name: "name", Kind: KindString, Rule: ReadOnly{Hint: "specified by the partition name"}},
	{ID: PropObjectURI, Name: "object-uri", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropObjectID, Name: "object-id", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropParent, Name: "parent", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropClass, Name: "class", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropStatus, Name: "status", Kind: KindString, Rule: ReadOnly{Hint: "controlled by the requested state"}},
	{ID: PropHasUnacceptableStatus, Name: "has-unacceptable-status", Kind: KindBool, Rule: ReadOnly{}},
	{ID: PropIsLocked, Name: "is-locked", Kind: KindBool, Rule: ReadOnly{}},
	{ID: PropOSName, Name: "os-name", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropOSType, Name: "os-type", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropOSVersion, Name: "os-version", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropDegradedAdapters, Name: "degraded-adapters", Kind: KindStringList, Rule: ReadOnly{}},
	{ID: PropCurrentIFLProcessingWeight, Name: "current-ifl-processing-weight", Kind: KindInt, Rule: ReadOnly{}},
	{ID: PropCurrentCPProcessingWeight, Name: "current-cp-processing-weight", Kind: KindInt, Rule: ReadOnly{}},
	{ID: PropReservedMemory, Name: "reserved-memory", Kind: KindInt, Rule: ReadOnly{}},
	{ID: PropAutoStart, Name: "auto-start", Kind: KindBool, Rule: ReadOnly{}},
	{ID: PropBootISOImageName, Name: "boot-iso-image-name", Kind: KindString, Rule: ReadOnly{}},
	{ID: PropThreadsPerProcessor, Name: "threads-per-processor", Kind: KindInt, Rule: ReadOnly{}},
	{ID: PropNICURIs, Name: "nic-uris", Kind: KindStringList, Rule: ReadOnly{}},
	{ID: PropHBAURIs, Name: "hba-uris", Kind: KindStringList, Rule: ReadOnly{}},
	{ID: PropVirtualFunctionURIs, Name: "virtual-function-uris", Kind: KindStringList, Rule: ReadOnly{}},
	{ID: PropStorageGroupURIs, Name: "storage-group-uris", Kind: KindStringList, Rule: ReadOnly{}},
	{ID: PropBootNetworkDevice, Name: "boot-network-device", Kind: KindString, Nullable: true,
		Rule: ReadOnly{Hint: "set it through boot_network_nic_name"}},
	{ID: PropBootStorageDevice, Name: "boot-storage-device", Kind: KindString, Nullable: true,
		Rule: ReadOnly{Hint: "set it through boot_storage_hba_name"}},

	{ID: PropType, Name: "type", Kind: KindString, Rule: CreateOnly{}},

	{ID: PropBootStorageVolume, Name: "boot-storage-volume", Kind: KindString, Nullable: true, Rule: UpdateOnly{}},

	{ID: PropDescription, Name: "description", Kind: KindString, Rule: Anytime{}},
	{ID: PropShortName, Name: "short-name", Kind: KindString, Rule: Anytime{StoppedOnly: true}},
	{ID: PropPartitionID, Name: "partition-id", Kind: KindString, Nullable: true, Rule: Anytime{StoppedOnly: true}},
	{ID: PropAutogeneratePartitionID, Name: "autogenerate-partition-id", Kind: KindBool, Rule: Anytime{StoppedOnly: true}},
	{ID: PropIFLProcessors, Name: "ifl-processors", Kind: KindInt, Rule: Anytime{}},
	{ID: PropCPProcessors, Name: "cp-processors", Kind: KindInt, Rule: Anytime{}},
	{ID: PropProcessorMode, Name: "processor-mode", Kind: KindString, Rule: Anytime{StoppedOnly: true}},
	{ID: PropInitialMemory, Name: "initial-memory", Kind: KindInt, Rule: Anytime{}},
	{ID: PropMaximumMemory, Name: "maximum-memory", Kind: KindInt, Rule: Anytime{StoppedOnly: true}},
	{ID: PropReserveResources, Name: "reserve-resources", Kind: KindBool, Rule: Anytime{}},
	{ID: PropIFLAbsoluteProcessorCapping, Name: "ifl-absolute-processor-capping", Kind: KindBool, Rule: Anytime{}},
	{ID: PropIFLAbsoluteProcessorCappingValue, Name: "ifl-absolute-processor-capping-value", Kind: KindFloat, Rule: Anytime{}},
	{ID: PropIFLProcessingWeightCapped, Name: "ifl-processing-weight-capped", Kind: KindBool, Rule: Anytime{}},
	{ID: PropInitialIFLProcessingWeight, Name: "initial-ifl-processing-weight", Kind: KindInt, Rule: Anytime{}},
	{ID: PropMinimumIFLProcessingWeight, Name: "minimum-ifl-processing-weight", Kind: KindInt, Rule: Anytime{}},
	{ID: PropMaximumIFLProcessingWeight, Name: "maximum-ifl-processing-weight", Kind: KindInt, Rule: Anytime{}},
	{ID: PropCPAbsoluteProcessorCapping, Name: "cp-absolute-processor-capping", Kind: KindBool, Rule: Anytime{}},
	{ID: PropCPAbsoluteProcessorCappingValue, Name: "cp-absolute-processor-capping-value", Kind: KindFloat, Rule: Anytime{}},
	{ID: PropCPProcessingWeightCapped, Name: "cp-processing-weight-capped", Kind: KindBool, Rule: Anytime{}},
	{ID: PropInitialCPProcessingWeight, Name: "initial-cp-processing-weight", Kind: KindInt, Rule: Anytime{}},
	{ID: PropBootDevice, Name: "boot-device", Kind: KindString, Rule: Anytime{}},
	{ID: PropBootTimeout, Name: "boot-timeout", Kind: KindInt, Rule: Anytime{}},
	{ID: PropBootFTPHost, Name: "boot-ftp-host", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootFTPUsername, Name: "boot-ftp-username", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootFTPPassword, Name: "boot-ftp-password", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootFTPInsfile, Name: "boot-ftp-insfile", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootRemovableMedia, Name: "boot-removable-media", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootRemovableMediaType, Name: "boot-removable-media-type", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropBootConfigurationSelector, Name: "boot-configuration-selector", Kind: KindInt, Rule: Anytime{}},
	{ID: PropBootRecordLBA, Name: "boot-record-lba", Kind: KindString, Rule: Anytime{}},
	{ID: PropBootLoadParameters, Name: "boot-load-parameters", Kind: KindString, Rule: Anytime{}},
	{ID: PropBootOSSpecificParameters, Name: "boot-os-specific-parameters", Kind: KindString, Rule: Anytime{}},
	{ID: PropBootLogicalUnitNumber, Name: "boot-logical-unit-number", Kind: KindString, Rule: Anytime{}},
	{ID: PropBootWorldWidePortName, Name: "boot-world-wide-port-name", Kind: KindString, Rule: Anytime{}},
	{ID: PropAccessGlobalPerformanceData, Name: "access-global-performance-data", Kind: KindBool, Rule: Anytime{}},
	{ID: PropPermitCrossPartitionCommands, Name: "permit-cross-partition-commands", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessBasicCounterSet, Name: "access-basic-counter-set", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessProblemStateCounterSet, Name: "access-problem-state-counter-set", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessCryptoActivityCounterSet, Name: "access-crypto-activity-counter-set", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessExtendedCounterSet, Name: "access-extended-counter-set", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessCoprocessorGroupSet, Name: "access-coprocessor-group-set", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessBasicSampling, Name: "access-basic-sampling", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAccessDiagnosticSampling, Name: "access-diagnostic-sampling", Kind: KindBool, Rule: Anytime{}},
	{ID: PropPermitDESKeyImportFunctions, Name: "permit-des-key-import-functions", Kind: KindBool, Rule: Anytime{}},
	{ID: PropPermitAESKeyImportFunctions, Name: "permit-aes-key-import-functions", Kind: KindBool, Rule: Anytime{}},
	{ID: PropAcceptableStatus, Name: "acceptable-status", Kind: KindStringList, Rule: Anytime{}},
	{ID: PropCryptoConfiguration, Name: "crypto-configuration", Kind: KindCrypto, Nullable: true, Rule: Anytime{}},
	{ID: PropSSCHostName, Name: "ssc-host-name", Kind: KindString, Rule: Anytime{}},
	{ID: PropSSCIPv4Gateway, Name: "ssc-ipv4-gateway", Kind: KindString, Nullable: true, Rule: Anytime{}},
	{ID: PropSSCDNSServers, Name: "ssc-dns-servers", Kind: KindStringList, Rule: Anytime{}},
	{ID: PropSSCMasterUserID, Name: "ssc-master-userid", Kind: KindString, Rule: Anytime{}},
	{ID: PropSSCMasterPassword, Name: "ssc-master-pw", Kind: KindString, Rule: Anytime{}},

	{ID: PropBootNetworkNICName, Name: "boot-network-nic-name", Kind: KindString,
		Rule: Artificial{Target: PropBootNetworkDevice, Dependent: DependentNIC}},
	{ID: PropBootStorageHBAName, Name: "boot-storage-hba-name", Kind: KindString,
		Rule: Artificial{Target: PropBootStorageDevice, Dependent: DependentHBA}},
}
