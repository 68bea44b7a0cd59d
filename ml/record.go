package ml

// Field names of the customer schema, in the order the codec lays them out.
const (
	FieldAge             = "age"
	FieldTenure          = "tenure"
	FieldMonthlyCharges  = "monthly_charges"
	FieldTotalCharges    = "total_charges"
	FieldContractType    = "contract_type"
	FieldPaymentMethod   = "payment_method"
	FieldInternetService = "internet_service"
	FieldOnlineSecurity  = "online_security"
	FieldTechSupport     = "tech_support"
)

var (
	numericFeatures = []string{
		FieldAge,
		FieldTenure,
		FieldMonthlyCharges,
		FieldTotalCharges,
	}
	categoricalFeatures = []string{
		FieldContractType,
		FieldPaymentMethod,
		FieldInternetService,
		FieldOnlineSecurity,
		FieldTechSupport,
	}
)

var (
	ContractTypes    = []string{"Month-to-month", "One year", "Two year"}
	PaymentMethods   = []string{"Electronic check", "Mailed check", "Bank transfer", "Credit card"}
	InternetServices = []string{"DSL", "Fiber optic", "No"}
	YesNo            = []string{"Yes", "No"}
)

// CustomerRecord is a validated customer. It is passed by value and never
// modified after ParseCustomerRecord returns it.
type CustomerRecord struct {
	Age             int     `json:"age"`
	Tenure          float64 `json:"tenure"`
	MonthlyCharges  float64 `json:"monthly_charges"`
	TotalCharges    float64 `json:"total_charges"`
	ContractType    string  `json:"contract_type"`
	PaymentMethod   string  `json:"payment_method"`
	InternetService string  `json:"internet_service"`
	OnlineSecurity  string  `json:"online_security"`
	TechSupport     string  `json:"tech_support"`
}

// LabeledRecord pairs a customer with its churn label (0 or 1).
type LabeledRecord struct {
	CustomerID int
	Record     CustomerRecord
	Churn      int
}

// FeatureVector is the model input, ordered as CodecState.FeatureNames.
type FeatureVector []float64

// FeatureNames returns the training-time column order.
func FeatureNames() []string {
	names := make([]string, 0, len(numericFeatures)+len(categoricalFeatures))
	names = append(names, numericFeatures...)
	names = append(names, categoricalFeatures...)
	return names
}

// RequiredFields lists the keys a raw record must carry.
func RequiredFields() []string {
	return FeatureNames()
}

func isNumericFeature(name string) bool {
	for _, f := range numericFeatures {
		if f == name {
			return true
		}
	}
	return false
}

func (r CustomerRecord) numeric(name string) (float64, bool) {
	switch name {
	case FieldAge:
		return float64(r.Age), true
	case FieldTenure:
		return r.Tenure, true
	case FieldMonthlyCharges:
		return r.MonthlyCharges, true
	case FieldTotalCharges:
		return r.TotalCharges, true
	}
	return 0, false
}

func (r CustomerRecord) categorical(name string) (string, bool) {
	switch name {
	case FieldContractType:
		return r.ContractType, true
	case FieldPaymentMethod:
		return r.PaymentMethod, true
	case FieldInternetService:
		return r.InternetService, true
	case FieldOnlineSecurity:
		return r.OnlineSecurity, true
	case FieldTechSupport:
		return r.TechSupport, true
	}
	return "", false
}

// ToMap renders the record with its schema keys, as stored in the prediction log.
func (r CustomerRecord) ToMap() map[string]interface{} {
	return map[string]interface{}{
		FieldAge:             r.Age,
		FieldTenure:          r.Tenure,
		FieldMonthlyCharges:  r.MonthlyCharges,
		FieldTotalCharges:    r.TotalCharges,
		FieldContractType:    r.ContractType,
		FieldPaymentMethod:   r.PaymentMethod,
		FieldInternetService: r.InternetService,
		FieldOnlineSecurity:  r.OnlineSecurity,
		FieldTechSupport:     r.TechSupport,
	}
}
