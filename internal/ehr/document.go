package ehr

import "time"

// Document is the patient's clinical record. Field names on the wire
// match the upstream chaincode payloads.
type Document struct {
	Diagnosis              string  `json:"diagnosis"`
	Treatment              string  `json:"treatment"`
	Medications            string  `json:"medications"`
	DoctorNotes            string  `json:"doctorNotes"`
	PatientHistory         string  `json:"patientHistory"`
	Allergies              string  `json:"allergies"`
	LabResults             string  `json:"labResults"`
	ImagingReports         string  `json:"imagingReports"`
	VitalSigns             string  `json:"vitalSigns"`
	FamilyHistory          string  `json:"familyHistory"`
	LifestyleFactors       string  `json:"lifestyleFactors"`
	Immunizations          string  `json:"immunizations"`
	CarePlan               string  `json:"carePlan"`
	FollowUpInstructions   string  `json:"followUpInstructions"`
	Entries                []Entry `json:"entries"`
}

// Entry is one append-only clinical note. Hash covers the entry content
// so later tampering is detectable independently of the document hash.
type Entry struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Note      string    `json:"note"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}
