package conversation

// Outgoing texts. They are written in English and translated by the
// gateway for users who picked another language.
const (
	msgWelcome           = "Hi there! My name is Insura from Wehbe Insurance Broker, your AI insurance assistant. I will be happy to assist you with your insurance requirements."
	msgNiceToMeet        = "Nice to meet you, %s! What would you like to do today?"
	msgAskName           = "Before we proceed, may I know your name please?"
	msgWelcomeNamed      = "Hi %s, welcome to Insura! What would you like to do today?"
	msgMenu              = "What would you like to do today?"
	msgMenuRetry         = "To continue with our guided assistance, please select one of the following options:"
	msgMenuAgain         = "Great! What would you like to do today?"
	msgUnexpectedUpload  = "I wasn't expecting a document at this point."
	msgApology           = "I'm sorry, I couldn't process your request at the moment. Please try again later."
	msgPurchaseAgain     = "Would you like to purchase our insurance again?"
	msgGoodbye           = "Thank you for using our services. If you need assistance in the future, feel free to message us anytime!"
	msgAskAnything       = "Feel free to ask me anything. I'm here to help!"
	msgLanguageChanged   = "Sure, I will reply in %s from now on. Please continue where we left off."
	msgUploadDocument    = "Please Upload Your Document"
	msgMemberNameManual  = "Next, we need the details of the member for whom the policy is being purchased. Please provide Name"
	msgMemberDOB         = "Date of Birth (DOB)"
	msgMemberGender      = "Thanks!Lets's continue.Please confirm the gender of %s"
	msgMemberGenderRetry = "Please confirm the gender of %s"
)

// Medical flow.
const (
	msgSalary              = "Thank you. Now, let's move on to: Could you please tell me your monthly salary?"
	msgSponsorPhone        = "Thank you for providing your salary.Now let's move on to: May I have the sponsor's mobile number, please?"
	msgSponsorPhoneRetry   = "May I have the sponsor's mobile number, please?"
	msgInvalidPhone        = "Please provide a valid phone number (e.g., +971501234567 or 0501234567)"
	msgSponsorEmail        = "Thank you for providing the mobile number. Now, let's move on to: May I have the sponsor's Email Address, please?"
	msgSponsorEmailRetry   = "May I have the sponsor's Email Address, please?"
	msgInvalidEmail        = "Please provide a valid email address (e.g., example@email.com)"
	msgMemberMethod        = "Thank you for providing the sponsor's email. Now,let's move on to:Next, we need the details of the member. Would you like to upload their Emirates ID or manually enter the information?"
	msgMemberMethodRetry   = "Next, we need the details of the member. Would you like to upload their Emirates ID or manually enter the information?"
	msgMaritalStatus       = "Please Confirm the marital status of %s"
	msgRelationship        = "Thank you Next,let's discuss.Could you kindly share your %s relationship with the sponsor?"
	msgAdvisor             = "Thank you for providing the relationship.let's proceed with: Do you have an Insurance Advisor code?"
	msgAdvisorCode         = "Thank you for the responses! Now,Please enter your Insurance Advisor code for assigning your enquiry for further assistance"
	msgAdvisorCodeInvalid  = "Please provide a valid 4-digit Insurance Advisor code."
	msgAdvisorCodeRetry    = "Please provide your Insurance Advisor code:"
	msgMedicalSuccess      = "Thank you for sharing the details. We will inform Shafeeque Shanavas from Wehbe Insurance to assist you further with your enquiry. Please find the link below to view your quotation: %s"
	msgMedicalFailure      = "Thank you for sharing the details. We will inform Shafeeque Shanavas from Wehbe Insurance to assist you further with your enquiry. Please wait for further assistance. If you have any questions, please contact support@insuranceclub.ae."
	msgReview              = "If you are satisfied with Wehbe(Broker) services, please leave a review for sharing happiness to others!!😊"
	msgReviewLabel         = "Click Here"
	msgQuoteReady          = "Good news! Your medical insurance quotation is now ready. Please find the link below to view your quotation: %s"
	defaultMemberReference = "the member"
)

// Motor flow.
const (
	msgVehicleType       = "What would you like to do today?"
	msgRegistrationCity  = "Great choice! Let's start with your motor insurance details. Select the city of registration:"
	msgRegistrationRetry = "Please select the city of registration:"
	msgCarOwnerMethod    = "Thank you! Now, we need the details of the car owner. Would you like to upload their Emirates ID or manually enter the information?"
	msgUploadLicense     = "Thank you, Now, Let's move on to: Please Upload your Driving License"
	msgUploadMulkiya     = "Thank you, Now, Let's move on to: Please Upload your Vehicle Mulkiya"
	msgWishToBuy         = "What type of insurance would you like to buy?"
	msgMotorComplete     = "Thank you for sharing the details. We will inform Shafeeque Shanavas from Wehbe Insurance to assist you further with your enquiry.Please wait for further  assistance. if you have any questions,Please contact support@insuranceclub.ae"
)

// Claim flow.
const (
	msgClaimIntro      = "I understand you want to file a claim. I'll guide you through the process."
	msgClaimType       = "What type of insurance policy are you filing a claim for? (Medical or Motor)"
	msgClaimPolicy     = "Thank you. What is your policy number?"
	msgClaimDetails    = "Please briefly describe the incident for which you are filing a claim:"
	msgClaimDate       = "When did the incident occur? (Please provide the date)"
	msgClaimThanks     = "Thank you for providing the claim information."
	msgClaimSpecialist = "A claims specialist will contact you within 24 hours to process your claim and guide you through the next steps."
)

// EMAF side-flow.
const (
	msgEMAFName    = "May I know your name, please?"
	msgEMAFPhone   = "May I kindly ask for your phone number, please?"
	msgEMAFCompany = "Could you kindly confirm the name of your insurance company, please?"
	msgEMAFSuccess = "Thank you for sharing the details. Please find the link below to view your emaf document: %s"
	msgEMAFFailure = "Sorry, there was an issue generating your link. Please try again later."
)

// Takaful Emarat Silver side-flow.
const (
	msgTakafulWelcome  = "Welcome to the Takaful Emarat Silver plan! What do you need to know about the Takaful Emarat Silver plan? Please let me know, I am here to help you!"
	msgTakafulBrochure = "Here's the detailed brochure for Takaful Emarat Silver plan: %s"
	msgTakafulFollowup = "Is there anything else you want me to help you with related to Takaful Emarat Silver?"
	msgTakafulContinue = "There's anything else Please ask, I am here to help you. related to Takaful Emarat Silver"
	msgTakafulExit     = "Thank you for your interest in Takaful Emarat Silver! If you have any more questions in the future, feel free to ask. Is there anything else I can help you with today?"
)

// Document verification.
const (
	msgDocInfoHeader     = "Here is the information from your document:"
	msgDocCompleteHeader = "Here is the complete information from your Emirates ID:"
	msgDocFinalHeader    = "Here's the final information after your edits:"
	msgDocCorrect        = "Is all the information correct?"
	msgDocCorrectNow     = "Is all the information correct now?"
	msgDocNeedBack       = "I need to see the back side of your Emirates ID to get the card number. Please upload a photo of the back side."
	msgDocBackReceived   = "Received the back side of your Emirates ID. Processing now, please wait..."
	msgDocBackFailed     = "Sorry, I couldn't extract information from the back side of your ID. Let's proceed with the information we have."
	msgDocSelectField    = "Which field would you like to edit? When you're finished editing, say 'Done'."
	msgDocCurrentValue   = "The current value for %s is: %s\n\nPlease enter the new value:"
	msgDocUpdated        = "Updated %s to: %s"
	msgDocEditAnother    = "Would you like to edit another field?"
	msgDocConfirmed      = "Thank you for confirming. We'll proceed with this information."
	msgDocReceived       = "Received your %s. Processing now, please wait..."
	msgDocExtractFailed  = "Sorry, I couldn't extract information from your %s. Please try again or enter the details manually."
	msgDocUnsupported    = "Unsupported file type. Please upload a PDF, JPG, or PNG file."
	msgDocError          = "An error occurred while processing your %s. Please try again."
	optionDoneEditing    = "Done Editing"
)

// Common option titles.
const (
	optionYes = "Yes"
	optionNo  = "No"
)

// Service titles offered by the main menu.
const (
	serviceMedical = "Medical Insurance"
	serviceMotor   = "Motor Insurance"
	serviceClaim   = "Claim"
)

// Persona and prompts for the LLM assistant.
const (
	assistantPersona = "You are Insura, a friendly Insurance assistant created by CloudSubset. Your role is to assist with any inquiries using your vast knowledge base. Provide helpful, accurate, and user-friendly responses to all questions or requests. Do not mention being a large language model; you are Insura."
	assistantPrompt  = "user response: %s. Please assist."

	takafulWarmPersona = "You are Insura, a friendly Insurance assistant created by CloudSubset. Your role is to greet customers warmly and make them feel welcome and comfortable. Keep responses short (1-3 lines) and maintain the exact same information while making it sound natural."
	takafulWelcomeTask = "Rewrite this welcome message in a friendly, conversational way as if a real insurance agent is greeting a customer. Keep the same content but make it sound natural and warm. Use only 1-3 lines maximum: '%s'"
	takafulRewriteTask = "A customer asked: \"%s\"\n\nThe answer from the Takaful Emarat Silver plan table is: \"%s\"\n\nRewrite the answer in a friendly, conversational way in 1-3 lines. Keep the exact same information and do not add facts."

	takafulDetectPersona = "You are an expert insurance assistant. Analyze if user messages are asking about Takaful Emarat Silver insurance plan."
	takafulDetectTask    = "Is the following message asking about the Takaful Emarat Silver plan, Silver coverage, Emarat insurance or Takaful insurance? Generic questions such as \"How much does it cost?\" or questions about other insurance types are not.\n\nUser message: \"%s\""

	takafulTopicPersona = "You are an expert insurance assistant. Analyze questions and match them to the correct insurance category."
	takafulTopicTask    = "Which Takaful Emarat Silver category does this question belong to?\n\n%s\nUser question: \"%s\""
)
