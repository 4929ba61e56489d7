package catalog

// Default returns the built-in data-schema catalog for the dealership data
// model. Entries are append-only; synonym sets reflect the field names seen
// on common sales, finance, and DMV form PDFs.
func Default() *Catalog {
	c, err := New(defaultSpecs)
	if err != nil {
		// The built-in specs are validated by tests; a parse failure here
		// is a programming error.
		panic(err)
	}
	return c
}

var defaultSpecs = CategorySpecs{
	{
		Name: "client",
		Fields: []Entry{
			{Value: "client.firstName", Label: "Buyer First Name", Synonyms: []string{"buyer first", "purchaser first name", "first name"}},
			{Value: "client.lastName", Label: "Buyer Last Name", Synonyms: []string{"buyer last", "purchaser last name", "last name"}},
			{Value: "client.fullName", Label: "Buyer Name", Synonyms: []string{"buyer name", "purchaser name", "customer name", "buyer printed name"}},
			{Value: "client.address", Label: "Buyer Address", Synonyms: []string{"buyer street address", "purchaser address", "address"}},
			{Value: "client.city", Label: "Buyer City", Synonyms: []string{"city"}},
			{Value: "client.state", Label: "Buyer State", Synonyms: []string{"state"}},
			{Value: "client.zip", Label: "Buyer Zip", Synonyms: []string{"zip", "zip code", "postal code"}},
			{Value: "client.phone", Label: "Buyer Phone", Synonyms: []string{"phone", "phone number", "telephone"}},
			{Value: "client.email", Label: "Buyer Email", Synonyms: []string{"email", "email address"}},
			{Value: "client.driversLicense", Label: "Buyer Drivers License", Synonyms: []string{"drivers license", "dl number", "license number"}},
			{Value: "client.dateOfBirth", Label: "Buyer Date Of Birth", Synonyms: []string{"date of birth", "dob", "birth date"}},
		},
	},
	{
		Name: "cobuyer",
		Fields: []Entry{
			{Value: "cobuyer.firstName", Label: "Co-Buyer First Name", Synonyms: []string{"cobuyer first", "buyer 2 first name", "second buyer first"}},
			{Value: "cobuyer.lastName", Label: "Co-Buyer Last Name", Synonyms: []string{"cobuyer last", "buyer 2 last name", "second buyer last"}},
			{Value: "cobuyer.fullName", Label: "Co-Buyer Name", Synonyms: []string{"cobuyer name", "buyer 2 name", "second buyer name", "co purchaser name"}},
			{Value: "cobuyer.address", Label: "Co-Buyer Address", Synonyms: []string{"cobuyer address", "buyer 2 address"}},
			{Value: "cobuyer.phone", Label: "Co-Buyer Phone", Synonyms: []string{"cobuyer phone", "buyer 2 phone"}},
			{Value: "cobuyer.driversLicense", Label: "Co-Buyer Drivers License", Synonyms: []string{"cobuyer license", "buyer 2 drivers license"}},
		},
	},
	{
		Name: "vehicle",
		Fields: []Entry{
			{Value: "vehicle.vin", Label: "VIN", Synonyms: []string{"vin number", "vehicle identification number", "serial number"}},
			{Value: "vehicle.year", Label: "Vehicle Year", Synonyms: []string{"year", "model year"}},
			{Value: "vehicle.make", Label: "Vehicle Make", Synonyms: []string{"make"}},
			{Value: "vehicle.model", Label: "Vehicle Model", Synonyms: []string{"model"}},
			{Value: "vehicle.trim", Label: "Vehicle Trim", Synonyms: []string{"trim", "trim level"}},
			{Value: "vehicle.mileage", Label: "Odometer", Synonyms: []string{"mileage", "odometer reading", "miles"}},
			{Value: "vehicle.color", Label: "Vehicle Color", Synonyms: []string{"color", "exterior color"}},
			{Value: "vehicle.stockNumber", Label: "Stock Number", Synonyms: []string{"stock no", "stock"}},
			{Value: "vehicle.bodyStyle", Label: "Body Style", Synonyms: []string{"body type", "body"}},
			{Value: "vehicle.licensePlate", Label: "License Plate", Synonyms: []string{"plate number", "tag number"}},
		},
	},
	{
		Name: "deal",
		Fields: []Entry{
			{Value: "deal.dealNumber", Label: "Deal Number", Synonyms: []string{"deal no", "contract number", "agreement number"}},
			{Value: "deal.saleDate", Label: "Sale Date", Synonyms: []string{"date of sale", "purchase date", "contract date", "date"}},
			{Value: "deal.salePrice", Label: "Sale Price", Synonyms: []string{"selling price", "purchase price", "cash price", "vehicle price"}},
			{Value: "deal.tradeInValue", Label: "Trade-In Value", Synonyms: []string{"trade allowance", "trade in allowance", "trade value"}},
			{Value: "deal.downPayment", Label: "Down Payment", Synonyms: []string{"cash down", "down"}},
			{Value: "deal.financedAmount", Label: "Amount Financed", Synonyms: []string{"financed amount", "amount financed"}},
			{Value: "deal.apr", Label: "APR", Synonyms: []string{"annual percentage rate", "interest rate", "rate"}},
			{Value: "deal.term", Label: "Term", Synonyms: []string{"term months", "number of payments", "loan term"}},
			{Value: "deal.monthlyPayment", Label: "Monthly Payment", Synonyms: []string{"payment amount", "monthly"}},
			{Value: "deal.salesTax", Label: "Sales Tax", Synonyms: []string{"tax", "sales tax amount"}},
			{Value: "deal.docFee", Label: "Documentation Fee", Synonyms: []string{"doc fee", "document fee", "processing fee"}},
			{Value: "deal.totalPrice", Label: "Total Price", Synonyms: []string{"total", "total sale price", "total due"}},
		},
	},
	{
		Name: "dealership",
		Fields: []Entry{
			{Value: "dealership.name", Label: "Dealer Name", Synonyms: []string{"dealership name", "seller name", "dealer"}},
			{Value: "dealership.address", Label: "Dealer Address", Synonyms: []string{"dealership address", "seller address"}},
			{Value: "dealership.city", Label: "Dealer City", Synonyms: []string{"dealership city"}},
			{Value: "dealership.state", Label: "Dealer State", Synonyms: []string{"dealership state"}},
			{Value: "dealership.zip", Label: "Dealer Zip", Synonyms: []string{"dealership zip"}},
			{Value: "dealership.phone", Label: "Dealer Phone", Synonyms: []string{"dealership phone"}},
			{Value: "dealership.dealerNumber", Label: "Dealer Number", Synonyms: []string{"dealer no", "dealer license number"}},
			{Value: "dealership.salesperson", Label: "Salesperson", Synonyms: []string{"salesperson name", "sales rep", "sales associate"}},
		},
	},
	{
		Name: "insurance",
		Fields: []Entry{
			{Value: "insurance.company", Label: "Insurance Company", Synonyms: []string{"insurance co", "insurer", "insurance carrier"}},
			{Value: "insurance.policyNumber", Label: "Policy Number", Synonyms: []string{"insurance policy number", "policy no"}},
			{Value: "insurance.agentName", Label: "Insurance Agent", Synonyms: []string{"agent name", "agent"}},
			{Value: "insurance.agentPhone", Label: "Agent Phone", Synonyms: []string{"insurance phone"}},
			{Value: "insurance.effectiveDate", Label: "Policy Effective Date", Synonyms: []string{"effective date"}},
			{Value: "insurance.expirationDate", Label: "Policy Expiration Date", Synonyms: []string{"expiration date", "expires"}},
		},
	},
	{
		Name: "lienHolder",
		Fields: []Entry{
			{Value: "lienHolder.name", Label: "Lienholder Name", Synonyms: []string{"lien holder", "lender name", "financial institution"}},
			{Value: "lienHolder.address", Label: "Lienholder Address", Synonyms: []string{"lien holder address", "lender address"}},
			{Value: "lienHolder.city", Label: "Lienholder City", Synonyms: []string{"lender city"}},
			{Value: "lienHolder.state", Label: "Lienholder State", Synonyms: []string{"lender state"}},
			{Value: "lienHolder.zip", Label: "Lienholder Zip", Synonyms: []string{"lender zip"}},
			{Value: "lienHolder.accountNumber", Label: "Lien Account Number", Synonyms: []string{"loan number", "account number"}},
		},
	},
}
