package translator

// Phrase and terminology tables for the on-device path. Tables are read-only
// after init, so concurrent translations never race.

// phrases maps "source-target" pairs to whole-phrase translations.
var phrases = map[string]map[string]string{
	"en-es": {
		"hello":                "hola",
		"good morning":         "buenos días",
		"good afternoon":       "buenas tardes",
		"good evening":         "buenas noches",
		"how are you":          "cómo estás",
		"hello, how are you?":  "hola, ¿cómo estás?",
		"thank you":            "gracias",
		"you're welcome":       "de nada",
		"yes":                  "sí",
		"no":                   "no",
		"doctor":               "médico",
		"nurse":                "enfermera",
		"hospital":             "hospital",
		"patient":              "paciente",
		"medicine":             "medicina",
		"pain":                 "dolor",
		"i need help":          "necesito ayuda",
		"emergency":            "emergencia",
		"prescription":         "receta",
		"pharmacy":             "farmacia",
		"symptoms":             "síntomas",
		"treatment":            "tratamiento",
		"diagnosis":            "diagnóstico",
		"appointment":          "cita",
		"insurance":            "seguro",
		"medical history":      "historial médico",
		"allergies":            "alergias",
		"vaccination":          "vacunación",
		"surgery":              "cirugía",
		"recovery":             "recuperación",
		"follow-up":            "seguimiento",
		"where does it hurt?":  "¿dónde le duele?",
		"take a deep breath":   "respire profundo",
		"how are you feeling?": "¿cómo se siente?",
	},
	"es-en": {
		"hola":             "hello",
		"buenos días":      "good morning",
		"buenas tardes":    "good afternoon",
		"buenas noches":    "good evening",
		"cómo estás":       "how are you",
		"gracias":          "thank you",
		"de nada":          "you're welcome",
		"sí":               "yes",
		"no":               "no",
		"médico":           "doctor",
		"enfermera":        "nurse",
		"hospital":         "hospital",
		"paciente":         "patient",
		"medicina":         "medicine",
		"dolor":            "pain",
		"necesito ayuda":   "I need help",
		"emergencia":       "emergency",
		"receta":           "prescription",
		"farmacia":         "pharmacy",
		"síntomas":         "symptoms",
		"tratamiento":      "treatment",
		"diagnóstico":      "diagnosis",
		"cita":             "appointment",
		"seguro":           "insurance",
		"historial médico": "medical history",
		"alergias":         "allergies",
		"vacunación":       "vaccination",
		"cirugía":          "surgery",
		"recuperación":     "recovery",
		"seguimiento":      "follow-up",
		"me duele":         "it hurts",
	},
	"en-fr": {
		"hello":           "bonjour",
		"good morning":    "bonjour",
		"good evening":    "bonsoir",
		"how are you":     "comment allez-vous",
		"thank you":       "merci",
		"you're welcome":  "de rien",
		"yes":             "oui",
		"no":              "non",
		"doctor":          "médecin",
		"nurse":           "infirmière",
		"hospital":        "hôpital",
		"patient":         "patient",
		"medicine":        "médicament",
		"pain":            "douleur",
		"i need help":     "j'ai besoin d'aide",
		"emergency":       "urgence",
		"prescription":    "ordonnance",
		"pharmacy":        "pharmacie",
		"symptoms":        "symptômes",
		"treatment":       "traitement",
		"diagnosis":       "diagnostic",
		"appointment":     "rendez-vous",
		"insurance":       "assurance",
		"medical history": "antécédents médicaux",
		"allergies":       "allergies",
		"vaccination":     "vaccination",
		"surgery":         "chirurgie",
		"recovery":        "rétablissement",
		"follow-up":       "suivi",
	},
}

// medicalTerms maps specialty -> English term -> target language -> term.
// Terms found in the source text are corrected in the translated output so
// clinical vocabulary survives the crude word-by-word path.
var medicalTerms = map[string]map[string]map[string]string{
	"cardiology": {
		"heart attack":            {"es": "ataque cardíaco", "fr": "crise cardiaque", "de": "Herzinfarkt"},
		"blood pressure":          {"es": "presión arterial", "fr": "pression artérielle", "de": "Blutdruck"},
		"arrhythmia":              {"es": "arritmia", "fr": "arythmie", "de": "Arrhythmie"},
		"myocardial infarction":   {"es": "infarto de miocardio", "fr": "infarctus du myocarde", "de": "Myokardinfarkt"},
		"coronary artery disease": {"es": "enfermedad de las arterias coronarias", "fr": "maladie coronarienne", "de": "Koronare Herzkrankheit"},
		"heart failure":           {"es": "insuficiencia cardíaca", "fr": "insuffisance cardiaque", "de": "Herzinsuffizienz"},
		"hypertension":            {"es": "hipertensión", "fr": "hypertension", "de": "Hypertonie"},
	},
	"general": {
		"fever":        {"es": "fiebre", "fr": "fièvre", "de": "Fieber"},
		"headache":     {"es": "dolor de cabeza", "fr": "mal de tête", "de": "Kopfschmerzen"},
		"nausea":       {"es": "náusea", "fr": "nausée", "de": "Übelkeit"},
		"pain":         {"es": "dolor", "fr": "douleur", "de": "Schmerz"},
		"allergy":      {"es": "alergia", "fr": "allergie", "de": "Allergie"},
		"infection":    {"es": "infección", "fr": "infection", "de": "Infektion"},
		"inflammation": {"es": "inflamación", "fr": "inflammation", "de": "Entzündung"},
	},
	"neurology": {
		"stroke":             {"es": "accidente cerebrovascular", "fr": "accident vasculaire cérébral", "de": "Schlaganfall"},
		"seizure":            {"es": "convulsión", "fr": "crise d'épilepsie", "de": "Anfall"},
		"migraine":           {"es": "migraña", "fr": "migraine", "de": "Migräne"},
		"multiple sclerosis": {"es": "esclerosis múltiple", "fr": "sclérose en plaques", "de": "Multiple Sklerose"},
	},
	"gastroenterology": {
		"ulcer":        {"es": "úlcera", "fr": "ulcère", "de": "Geschwür"},
		"gastritis":    {"es": "gastritis", "fr": "gastrite", "de": "Gastritis"},
		"appendicitis": {"es": "apendicitis", "fr": "appendicite", "de": "Blinddarmentzündung"},
	},
	"pulmonology": {
		"asthma":       {"es": "asma", "fr": "asthme", "de": "Asthma"},
		"pneumonia":    {"es": "neumonía", "fr": "pneumonie", "de": "Lungenentzündung"},
		"tuberculosis": {"es": "tuberculosis", "fr": "tuberculose", "de": "Tuberkulose"},
	},
}
